package experiment

import (
	"net/http"
	"strconv"

	apiError "stg-database/internal/errors"
	"stg-database/internal/middleware"
	"stg-database/internal/session"
	"stg-database/internal/utils"

	"github.com/gin-gonic/gin"
)

// AttachmentView is what the detail page needs from the attachment layer.
type AttachmentView interface {
	EnsureInitialized(key string) error
	Files(key string) ([]string, error)
	Reconcile(key string) (int, error)
}

type Handler struct {
	service     Service
	attachments AttachmentView
	sessions    session.Store
}

func NewHandler(service Service, attachments AttachmentView, sessions session.Store) *Handler {
	return &Handler{service: service, attachments: attachments, sessions: sessions}
}

// MetadataForm carries the editable metadata fields.
type MetadataForm struct {
	ExpDate      string   `json:"exp_date" binding:"required,datetime=2006-01-02"`
	AnimalDate   string   `json:"animal_date" binding:"omitempty,datetime=2006-01-02"`
	Experimenter string   `json:"experimenter" binding:"max=20"`
	Lab          string   `json:"lab" binding:"max=20"`
	Temp         *float64 `json:"temp"`
	TankTemp     *float64 `json:"tanktemp"`
	Species      string   `json:"species" binding:"max=20"`
	Saline       string   `json:"saline" binding:"omitempty,oneof=cancer-std homarus-std pand-std alt"`
	IntraSol     string   `json:"intra_sol" binding:"omitempty,oneof=none KCl KAcetate K2SO4 Hooper alt"`
	Notes        string   `json:"notes" binding:"max=1000"`
}

// NewExperimentForm adds the immutable experiment id.
type NewExperimentForm struct {
	MetadataForm
	ExpID string `json:"exp_id" binding:"required,max=20"`
}

type TagsForm struct {
	Nerves  []string `json:"nerves"`
	Neurons []string `json:"neurons"`
	Flags   []string `json:"flags"`
}

type NewConditionForm struct {
	Name string `json:"name" binding:"required"`
}

// ConditionDataForm carries the measurement fields. Phase fractions are
// bound to [0,1].
type ConditionDataForm struct {
	Temp      *float64 `json:"temp"`
	PylHz     *float64 `json:"pyl_hz"`
	PylCycVar *float64 `json:"pyl_cycvar"`
	PylNIQR   *float64 `json:"pyl_niqr"`
	GasHz     *float64 `json:"gas_hz"`
	GasCycVar *float64 `json:"gas_cycvar"`
	GasNIQR   *float64 `json:"gas_niqr"`
	PDOff     *float64 `json:"pd_off" binding:"omitempty,gte=0,lte=1"`
	PDSpikes  *float64 `json:"pd_spikes"`
	LPOn      *float64 `json:"lp_on" binding:"omitempty,gte=0,lte=1"`
	LPOff     *float64 `json:"lp_off" binding:"omitempty,gte=0,lte=1"`
	LPSpikes  *float64 `json:"lp_spikes"`
	PYOn      *float64 `json:"py_on" binding:"omitempty,gte=0,lte=1"`
	PYOff     *float64 `json:"py_off" binding:"omitempty,gte=0,lte=1"`
	PYSpikes  *float64 `json:"py_spikes"`
	VDOn      *float64 `json:"vd_on" binding:"omitempty,gte=0,lte=1"`
	VDOff     *float64 `json:"vd_off" binding:"omitempty,gte=0,lte=1"`
	VDSpikes  *float64 `json:"vd_spikes"`
	LGOff     *float64 `json:"lg_off" binding:"omitempty,gte=0,lte=1"`
	LGSpikes  *float64 `json:"lg_spikes"`
	DGOn      *float64 `json:"dg_on" binding:"omitempty,gte=0,lte=1"`
	DGOff     *float64 `json:"dg_off" binding:"omitempty,gte=0,lte=1"`
	DGSpikes  *float64 `json:"dg_spikes"`
	GMOn      *float64 `json:"gm_on" binding:"omitempty,gte=0,lte=1"`
	GMOff     *float64 `json:"gm_off" binding:"omitempty,gte=0,lte=1"`
	GMSpikes  *float64 `json:"gm_spikes"`
	MGOn      *float64 `json:"mg_on" binding:"omitempty,gte=0,lte=1"`
	MGOff     *float64 `json:"mg_off" binding:"omitempty,gte=0,lte=1"`
	MGSpikes  *float64 `json:"mg_spikes"`
	Blank1    *float64 `json:"blank1"`
	Blank2    *float64 `json:"blank2"`
	Blank3    *float64 `json:"blank3"`
}

func (f *MetadataForm) toExperiment() *Experiment {
	return &Experiment{
		ExpDate:      f.ExpDate,
		AnimalDate:   f.AnimalDate,
		Experimenter: f.Experimenter,
		Lab:          f.Lab,
		Temp:         f.Temp,
		TankTemp:     f.TankTemp,
		Species:      f.Species,
		IntraSol:     f.IntraSol,
		Saline:       f.Saline,
		Notes:        f.Notes,
	}
}

func (f *ConditionDataForm) toCondition() *Condition {
	return &Condition{
		Temp: f.Temp, PylHz: f.PylHz, PylCycVar: f.PylCycVar, PylNIQR: f.PylNIQR,
		GasHz: f.GasHz, GasCycVar: f.GasCycVar, GasNIQR: f.GasNIQR,
		PDOff: f.PDOff, PDSpikes: f.PDSpikes,
		LPOn: f.LPOn, LPOff: f.LPOff, LPSpikes: f.LPSpikes,
		PYOn: f.PYOn, PYOff: f.PYOff, PYSpikes: f.PYSpikes,
		VDOn: f.VDOn, VDOff: f.VDOff, VDSpikes: f.VDSpikes,
		LGOff: f.LGOff, LGSpikes: f.LGSpikes,
		DGOn: f.DGOn, DGOff: f.DGOff, DGSpikes: f.DGSpikes,
		GMOn: f.GMOn, GMOff: f.GMOff, GMSpikes: f.GMSpikes,
		MGOn: f.MGOn, MGOff: f.MGOff, MGSpikes: f.MGSpikes,
		Blank1: f.Blank1, Blank2: f.Blank2, Blank3: f.Blank3,
	}
}

// resolveOwned loads the experiment and enforces ownership: users see only
// their own experiments, Admin sees everything.
func (h *Handler) resolveOwned(c *gin.Context) (*Experiment, bool) {
	key := c.Param("key")
	exp, err := h.service.Get(key)
	if err != nil {
		c.Error(err)
		return nil, false
	}
	username := c.GetString("username")
	if username != middleware.AdminUsername && exp.Owner != username {
		c.Error(apiError.Forbidden("Not your experiment"))
		return nil, false
	}
	return exp, true
}

func (h *Handler) Create(c *gin.Context) {
	var form NewExperimentForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(apiError.NewValidationError(err))
		return
	}

	username := c.GetString("username")
	exp := form.toExperiment()
	exp.ExpID = form.ExpID

	key, err := h.service.Create(username, exp)
	if err != nil {
		c.Error(err)
		return
	}

	// the new experiment becomes the current selection
	if err := h.sessions.SetExperiment(c.Request.Context(), username, key); err != nil {
		c.Error(err)
		return
	}
	if err := h.sessions.SetCondition(c.Request.Context(), username, 0, BaselineName); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"key": key})
}

func (h *Handler) List(c *gin.Context) {
	username := c.GetString("username")
	owner := username
	if username == middleware.AdminUsername {
		owner = c.Query("owner") // Admin can see all experiments
	}

	exps := h.service.List(owner)
	page, pageSize := utils.GetPaginationParams(c)
	paged, meta := utils.Paginate(exps, page, pageSize)

	c.JSON(http.StatusOK, gin.H{"data": ToResponses(paged), "meta": meta})
}

func (h *Handler) Show(c *gin.Context) {
	exp, ok := h.resolveOwned(c)
	if !ok {
		return
	}
	key := exp.Key()

	// lazily create the attachment directory, then trust the listing over
	// the cached counter
	if err := h.attachments.EnsureInitialized(key); err != nil {
		c.Error(err)
		return
	}
	fileCount, err := h.attachments.Reconcile(key)
	if err != nil {
		c.Error(err)
		return
	}
	exp.FileCount = fileCount

	files, err := h.attachments.Files(key)
	if err != nil {
		c.Error(err)
		return
	}
	conditions, err := h.service.Conditions(key)
	if err != nil {
		c.Error(err)
		return
	}

	username := c.GetString("username")
	if err := h.sessions.SetExperiment(c.Request.Context(), username, key); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"experiment": ToResponse(*exp),
		"conditions": ToConditionResponses(conditions),
		"files":      files,
	})
}

func (h *Handler) UpdateMetadata(c *gin.Context) {
	exp, ok := h.resolveOwned(c)
	if !ok {
		return
	}

	var form MetadataForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(apiError.NewValidationError(err))
		return
	}

	if err := h.service.UpdateMetadata(exp.Key(), form.toExperiment()); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) UpdateTags(c *gin.Context) {
	exp, ok := h.resolveOwned(c)
	if !ok {
		return
	}

	var form TagsForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(apiError.NewValidationError(err))
		return
	}

	if err := h.service.UpdateTags(exp.Key(), form.Nerves, form.Neurons, form.Flags); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Delete(c *gin.Context) {
	exp, ok := h.resolveOwned(c)
	if !ok {
		return
	}
	if err := h.service.Delete(exp.Key()); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) AddCondition(c *gin.Context) {
	exp, ok := h.resolveOwned(c)
	if !ok {
		return
	}

	var form NewConditionForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(apiError.NewValidationError(err))
		return
	}

	index, err := h.service.AddCondition(exp.Key(), form.Name)
	if err != nil {
		c.Error(err)
		return
	}

	username := c.GetString("username")
	if err := h.sessions.SetCondition(c.Request.Context(), username, index, form.Name); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"index": index, "name": form.Name})
}

func (h *Handler) ShowCondition(c *gin.Context) {
	exp, ok := h.resolveOwned(c)
	if !ok {
		return
	}
	index, ok := conditionIndex(c)
	if !ok {
		return
	}

	cond, err := h.service.GetCondition(exp.Key(), index)
	if err != nil {
		c.Error(err)
		return
	}

	username := c.GetString("username")
	if err := h.sessions.SetCondition(c.Request.Context(), username, index, cond.Name); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, ToConditionResponse(index, *cond))
}

func (h *Handler) UpdateCondition(c *gin.Context) {
	exp, ok := h.resolveOwned(c)
	if !ok {
		return
	}
	index, ok := conditionIndex(c)
	if !ok {
		return
	}

	var form ConditionDataForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(apiError.NewValidationError(err))
		return
	}

	if err := h.service.UpdateCondition(exp.Key(), index, form.toCondition()); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) DeleteCondition(c *gin.Context) {
	exp, ok := h.resolveOwned(c)
	if !ok {
		return
	}
	index, ok := conditionIndex(c)
	if !ok {
		return
	}

	if err := h.service.DeleteCondition(exp.Key(), index); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func conditionIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.Error(apiError.NotFound("Condition not found", err))
		return 0, false
	}
	return index, true
}
