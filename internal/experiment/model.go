package experiment

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

// BaselineName is the condition every experiment starts with at index 0.
// It can be edited but never deleted.
const BaselineName = "baseline"

// TagSeparator joins tag selections into the stored tag strings.
const TagSeparator = "; "

// Fixed vocabularies for the three tag sets.
var (
	NerveTags = []string{"lvn", "pdn", "pyn", "lpn", "mvn", "dgn", "lgn", "aln",
		"stn", "dvn", "son", "ion", "dpon"}

	NeuronTags = []string{"PD", "LP", "PY", "VD", "IC", "Int1", "LG", "DG", "GM", "MG",
		"H", "AGR", "AB", "CoG", "OeG", "MCN1", "MCN5"}

	FlagTags = []string{"VoltageClamp", "TempRamp", "IsolatedNeurons", "DynamicClamp",
		"Decentralization", "Neuromodulation", "Immuno", "Published", "LongTerm"}
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidName reports whether a name satisfies the alphanumeric/underscore
// policy within the given length bounds.
func ValidName(name string, minLen, maxLen int) bool {
	if len(name) < minLen || len(name) > maxLen {
		return false
	}
	return namePattern.MatchString(name)
}

// Experiment is one metadata record. On disk it is a fixed-position
// 17-element JSON array; the slot order is part of the wire format and must
// not change.
type Experiment struct {
	Owner          string
	ExpID          string
	ExpDate        string
	AnimalDate     string
	Experimenter   string
	Lab            string
	Temp           *float64
	TankTemp       *float64
	Species        string
	IntraSol       string
	Saline         string
	ConditionCount int
	FileCount      int
	Nerves         string
	Neurons        string
	Flags          string
	Notes          string
}

// Key returns the experiment key, formed from owner and experiment id.
func (e *Experiment) Key() string {
	return e.Owner + "-" + e.ExpID
}

const experimentSlots = 17

func (e Experiment) MarshalJSON() ([]byte, error) {
	out := []any{
		e.Owner, e.ExpID, e.ExpDate, e.AnimalDate, e.Experimenter, e.Lab,
		numberOrNull(e.Temp), numberOrNull(e.TankTemp),
		e.Species, e.IntraSol, e.Saline,
		e.ConditionCount, e.FileCount,
		e.Nerves, e.Neurons, e.Flags, e.Notes,
	}
	return json.Marshal(out)
}

func (e *Experiment) UnmarshalJSON(data []byte) error {
	var slots []any
	if err := json.Unmarshal(data, &slots); err != nil {
		return err
	}
	if len(slots) != experimentSlots {
		return fmt.Errorf("metadata record has %d slots, want %d", len(slots), experimentSlots)
	}
	e.Owner = stringSlot(slots[0])
	e.ExpID = stringSlot(slots[1])
	e.ExpDate = stringSlot(slots[2])
	e.AnimalDate = stringSlot(slots[3])
	e.Experimenter = stringSlot(slots[4])
	e.Lab = stringSlot(slots[5])
	e.Temp = numberSlot(slots[6])
	e.TankTemp = numberSlot(slots[7])
	e.Species = stringSlot(slots[8])
	e.IntraSol = stringSlot(slots[9])
	e.Saline = stringSlot(slots[10])
	e.ConditionCount = intSlot(slots[11])
	e.FileCount = intSlot(slots[12])
	e.Nerves = stringSlot(slots[13])
	e.Neurons = stringSlot(slots[14])
	e.Flags = stringSlot(slots[15])
	e.Notes = stringSlot(slots[16])
	return nil
}

// Condition is one measurement record. On disk it is a fixed-position
// 33-element JSON array: name, then 32 optional numeric fields (null when
// unset).
type Condition struct {
	Name      string
	Temp      *float64
	PylHz     *float64
	PylCycVar *float64
	PylNIQR   *float64
	GasHz     *float64
	GasCycVar *float64
	GasNIQR   *float64
	PDOff     *float64
	PDSpikes  *float64
	LPOn      *float64
	LPOff     *float64
	LPSpikes  *float64
	PYOn      *float64
	PYOff     *float64
	PYSpikes  *float64
	VDOn      *float64
	VDOff     *float64
	VDSpikes  *float64
	LGOff     *float64
	LGSpikes  *float64
	DGOn      *float64
	DGOff     *float64
	DGSpikes  *float64
	GMOn      *float64
	GMOff     *float64
	GMSpikes  *float64
	MGOn      *float64
	MGOff     *float64
	MGSpikes  *float64
	Blank1    *float64
	Blank2    *float64
	Blank3    *float64
}

const conditionSlots = 33

// numeric returns pointers to the numeric fields in wire order.
func (c *Condition) numeric() []**float64 {
	return []**float64{
		&c.Temp, &c.PylHz, &c.PylCycVar, &c.PylNIQR,
		&c.GasHz, &c.GasCycVar, &c.GasNIQR,
		&c.PDOff, &c.PDSpikes,
		&c.LPOn, &c.LPOff, &c.LPSpikes,
		&c.PYOn, &c.PYOff, &c.PYSpikes,
		&c.VDOn, &c.VDOff, &c.VDSpikes,
		&c.LGOff, &c.LGSpikes,
		&c.DGOn, &c.DGOff, &c.DGSpikes,
		&c.GMOn, &c.GMOff, &c.GMSpikes,
		&c.MGOn, &c.MGOff, &c.MGSpikes,
		&c.Blank1, &c.Blank2, &c.Blank3,
	}
}

// Values returns copies of the numeric field pointers in wire order.
func (c *Condition) Values() []*float64 {
	out := make([]*float64, 0, conditionSlots-1)
	for _, p := range c.numeric() {
		out = append(out, *p)
	}
	return out
}

// phases returns the phase-fraction fields, all constrained to [0,1].
func (c *Condition) phases() map[string]*float64 {
	return map[string]*float64{
		"pd_off": c.PDOff,
		"lp_on":  c.LPOn, "lp_off": c.LPOff,
		"py_on": c.PYOn, "py_off": c.PYOff,
		"vd_on": c.VDOn, "vd_off": c.VDOff,
		"lg_off": c.LGOff,
		"dg_on":  c.DGOn, "dg_off": c.DGOff,
		"gm_on": c.GMOn, "gm_off": c.GMOff,
		"mg_on": c.MGOn, "mg_off": c.MGOff,
	}
}

// Validate checks the range constraints on phase fields.
func (c *Condition) Validate() error {
	for name, v := range c.phases() {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s out of range: phases are fractions in [0,1]", name)
		}
	}
	return nil
}

func (c Condition) MarshalJSON() ([]byte, error) {
	out := make([]any, 0, conditionSlots)
	out = append(out, c.Name)
	for _, p := range c.numeric() {
		out = append(out, numberOrNull(*p))
	}
	return json.Marshal(out)
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	var slots []any
	if err := json.Unmarshal(data, &slots); err != nil {
		return err
	}
	if len(slots) != conditionSlots {
		return fmt.Errorf("condition record has %d slots, want %d", len(slots), conditionSlots)
	}
	c.Name = stringSlot(slots[0])
	for i, p := range c.numeric() {
		*p = numberSlot(slots[i+1])
	}
	return nil
}

// ConditionKey forms the processed-data store key for one condition.
func ConditionKey(expKey string, index int) string {
	return expKey + "_" + strconv.Itoa(index)
}

func numberOrNull(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringSlot(v any) string {
	s, _ := v.(string)
	return s
}

func numberSlot(v any) *float64 {
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return &f
}

func intSlot(v any) int {
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return int(f)
}
