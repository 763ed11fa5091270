package grading

import (
	"fmt"
	"sort"
	"sync"
)

// Scale names registered by this package.
const (
	ScaleLegacy          = "ielts.legacy"
	ScaleLegacyFixed     = "ielts.legacy.fixed"
	ScaleListening       = "ielts.listening"
	ScaleReadingAcademic = "ielts.reading.academic"
	ScaleReadingGeneral  = "ielts.reading.general"
)

// BandScale converts a raw count of correct answers (out of 40) to a band.
type BandScale interface {
	Band(correct int) float64
}

// StepTable is a BandScale made of inclusive [Min, Max] ranges. Counts that
// fall in no range map to 0.
type StepTable []Step

type Step struct {
	Min, Max int
	Band     float64
}

func (t StepTable) Band(correct int) float64 {
	for _, s := range t {
		if correct >= s.Min && correct <= s.Max {
			return s.Band
		}
	}
	return 0
}

// legacyTable has no row for 39; a score of 39 maps to 0.
var legacyTable = StepTable{
	{3, 4, 2.5},
	{5, 7, 3.0},
	{8, 9, 3.5},
	{10, 12, 4.0},
	{13, 15, 4.5},
	{16, 17, 5.0},
	{18, 22, 5.5},
	{23, 25, 6.0},
	{26, 29, 6.5},
	{30, 31, 7.0},
	{32, 34, 7.5},
	{35, 36, 8.0},
	{37, 38, 8.5},
	{40, 40, 9.0},
}

var listeningTable = StepTable{
	{4, 5, 2.5},
	{6, 7, 3.0},
	{8, 9, 3.5},
	{10, 12, 4.0},
	{13, 15, 4.5},
	{16, 17, 5.0},
	{18, 22, 5.5},
	{23, 25, 6.0},
	{26, 29, 6.5},
	{30, 31, 7.0},
	{32, 34, 7.5},
	{35, 36, 8.0},
	{37, 38, 8.5},
	{39, 40, 9.0},
}

var academicReadingTable = StepTable{
	{4, 5, 2.5},
	{6, 7, 3.0},
	{8, 9, 3.5},
	{10, 12, 4.0},
	{13, 14, 4.5},
	{15, 18, 5.0},
	{19, 22, 5.5},
	{23, 26, 6.0},
	{27, 29, 6.5},
	{30, 32, 7.0},
	{33, 34, 7.5},
	{35, 36, 8.0},
	{37, 38, 8.5},
	{39, 40, 9.0},
}

var generalReadingTable = StepTable{
	{6, 8, 2.5},
	{9, 11, 3.0},
	{12, 14, 3.5},
	{15, 18, 4.0},
	{19, 22, 4.5},
	{23, 26, 5.0},
	{27, 29, 5.5},
	{30, 31, 6.0},
	{32, 33, 6.5},
	{34, 35, 7.0},
	{36, 36, 7.5},
	{37, 38, 8.0},
	{39, 39, 8.5},
	{40, 40, 9.0},
}

var (
	scalesMu sync.RWMutex
	scales   = map[string]BandScale{}
)

func init() {
	RegisterScale(ScaleLegacy, legacyTable)
	RegisterScale(ScaleLegacyFixed, append(append(StepTable{}, legacyTable...), Step{39, 39, 9.0}))
	RegisterScale(ScaleListening, listeningTable)
	RegisterScale(ScaleReadingAcademic, academicReadingTable)
	RegisterScale(ScaleReadingGeneral, generalReadingTable)
}

// RegisterScale binds a scale to a name, replacing any previous binding.
func RegisterScale(name string, s BandScale) {
	scalesMu.Lock()
	defer scalesMu.Unlock()
	scales[name] = s
}

// LookupScale returns the named scale.
func LookupScale(name string) (BandScale, error) {
	scalesMu.RLock()
	defer scalesMu.RUnlock()
	s, ok := scales[name]
	if !ok {
		return nil, fmt.Errorf("unknown band scale %q", name)
	}
	return s, nil
}

// ScaleNames lists registered scales, sorted.
func ScaleNames() []string {
	scalesMu.RLock()
	defer scalesMu.RUnlock()
	out := make([]string, 0, len(scales))
	for n := range scales {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// BandFor is LookupScale followed by Band.
func BandFor(name string, correct int) (float64, error) {
	s, err := LookupScale(name)
	if err != nil {
		return 0, err
	}
	return s.Band(correct), nil
}
