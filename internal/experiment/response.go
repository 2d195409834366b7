package experiment

// Response is the JSON shape experiments are rendered as. Distinct from
// the fixed-position wire format used in the store files.
type Response struct {
	Key            string   `json:"key"`
	Owner          string   `json:"owner"`
	ExpID          string   `json:"exp_id"`
	ExpDate        string   `json:"exp_date"`
	AnimalDate     string   `json:"animal_date,omitempty"`
	Experimenter   string   `json:"experimenter,omitempty"`
	Lab            string   `json:"lab,omitempty"`
	Temp           *float64 `json:"temp,omitempty"`
	TankTemp       *float64 `json:"tanktemp,omitempty"`
	Species        string   `json:"species,omitempty"`
	IntraSol       string   `json:"intra_sol,omitempty"`
	Saline         string   `json:"saline,omitempty"`
	ConditionCount int      `json:"condition_count"`
	FileCount      int      `json:"file_count"`
	Nerves         string   `json:"nerves,omitempty"`
	Neurons        string   `json:"neurons,omitempty"`
	Flags          string   `json:"flags,omitempty"`
	Notes          string   `json:"notes,omitempty"`
}

func ToResponse(e Experiment) Response {
	return Response{
		Key:            e.Key(),
		Owner:          e.Owner,
		ExpID:          e.ExpID,
		ExpDate:        e.ExpDate,
		AnimalDate:     e.AnimalDate,
		Experimenter:   e.Experimenter,
		Lab:            e.Lab,
		Temp:           e.Temp,
		TankTemp:       e.TankTemp,
		Species:        e.Species,
		IntraSol:       e.IntraSol,
		Saline:         e.Saline,
		ConditionCount: e.ConditionCount,
		FileCount:      e.FileCount,
		Nerves:         e.Nerves,
		Neurons:        e.Neurons,
		Flags:          e.Flags,
		Notes:          e.Notes,
	}
}

func ToResponses(exps []Experiment) []Response {
	out := make([]Response, 0, len(exps))
	for _, e := range exps {
		out = append(out, ToResponse(e))
	}
	return out
}

// ConditionResponse attaches the dense index to the measurement record.
type ConditionResponse struct {
	Index int    `json:"index"`
	Name  string `json:"name"`

	Temp      *float64 `json:"temp,omitempty"`
	PylHz     *float64 `json:"pyl_hz,omitempty"`
	PylCycVar *float64 `json:"pyl_cycvar,omitempty"`
	PylNIQR   *float64 `json:"pyl_niqr,omitempty"`
	GasHz     *float64 `json:"gas_hz,omitempty"`
	GasCycVar *float64 `json:"gas_cycvar,omitempty"`
	GasNIQR   *float64 `json:"gas_niqr,omitempty"`
	PDOff     *float64 `json:"pd_off,omitempty"`
	PDSpikes  *float64 `json:"pd_spikes,omitempty"`
	LPOn      *float64 `json:"lp_on,omitempty"`
	LPOff     *float64 `json:"lp_off,omitempty"`
	LPSpikes  *float64 `json:"lp_spikes,omitempty"`
	PYOn      *float64 `json:"py_on,omitempty"`
	PYOff     *float64 `json:"py_off,omitempty"`
	PYSpikes  *float64 `json:"py_spikes,omitempty"`
	VDOn      *float64 `json:"vd_on,omitempty"`
	VDOff     *float64 `json:"vd_off,omitempty"`
	VDSpikes  *float64 `json:"vd_spikes,omitempty"`
	LGOff     *float64 `json:"lg_off,omitempty"`
	LGSpikes  *float64 `json:"lg_spikes,omitempty"`
	DGOn      *float64 `json:"dg_on,omitempty"`
	DGOff     *float64 `json:"dg_off,omitempty"`
	DGSpikes  *float64 `json:"dg_spikes,omitempty"`
	GMOn      *float64 `json:"gm_on,omitempty"`
	GMOff     *float64 `json:"gm_off,omitempty"`
	GMSpikes  *float64 `json:"gm_spikes,omitempty"`
	MGOn      *float64 `json:"mg_on,omitempty"`
	MGOff     *float64 `json:"mg_off,omitempty"`
	MGSpikes  *float64 `json:"mg_spikes,omitempty"`
	Blank1    *float64 `json:"blank1,omitempty"`
	Blank2    *float64 `json:"blank2,omitempty"`
	Blank3    *float64 `json:"blank3,omitempty"`
}

func ToConditionResponse(index int, c Condition) ConditionResponse {
	return ConditionResponse{
		Index: index, Name: c.Name,
		Temp: c.Temp, PylHz: c.PylHz, PylCycVar: c.PylCycVar, PylNIQR: c.PylNIQR,
		GasHz: c.GasHz, GasCycVar: c.GasCycVar, GasNIQR: c.GasNIQR,
		PDOff: c.PDOff, PDSpikes: c.PDSpikes,
		LPOn: c.LPOn, LPOff: c.LPOff, LPSpikes: c.LPSpikes,
		PYOn: c.PYOn, PYOff: c.PYOff, PYSpikes: c.PYSpikes,
		VDOn: c.VDOn, VDOff: c.VDOff, VDSpikes: c.VDSpikes,
		LGOff: c.LGOff, LGSpikes: c.LGSpikes,
		DGOn: c.DGOn, DGOff: c.DGOff, DGSpikes: c.DGSpikes,
		GMOn: c.GMOn, GMOff: c.GMOff, GMSpikes: c.GMSpikes,
		MGOn: c.MGOn, MGOff: c.MGOff, MGSpikes: c.MGSpikes,
		Blank1: c.Blank1, Blank2: c.Blank2, Blank3: c.Blank3,
	}
}

func ToConditionResponses(conds []Condition) []ConditionResponse {
	out := make([]ConditionResponse, 0, len(conds))
	for i, c := range conds {
		out = append(out, ToConditionResponse(i, c))
	}
	return out
}
