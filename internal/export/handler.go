package export

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apiError "stg-database/internal/errors"
)

// ReadmeText ships with every full-database download and explains the two
// store layouts to downstream consumers.
const ReadmeText = `STG Database export
===================

metadata: one row per experiment, keyed <owner>-<exp_id>. Columns list the
recording context (dates, experimenter, lab, temperatures, species,
solutions) plus the condition and file counters and the tag strings.

processed data: one row per condition, keyed <experiment key>_<index>.
Index 0 is always the baseline condition. Phase columns (pd_off, lp_on,
lp_off, py_on, py_off, vd_on, vd_off, lg_off, dg_on, dg_off, gm_on,
gm_off, mg_on, mg_off) are fractions of the pyloric cycle in [0,1].
Empty cells mean the value was never measured.
`

// Handler serves the derived read-only views of both stores.
type Handler struct {
	source Source
}

func NewHandler(source Source) *Handler {
	return &Handler{source: source}
}

func (h *Handler) MetadataCSV(c *gin.Context) {
	includeNotes := c.DefaultQuery("notes", "true") != "false"
	body, err := MetadataCSV(h.source, includeNotes)
	if err != nil {
		c.Error(apiError.Internal(err))
		return
	}
	sendAttachment(c, "metadata.csv", "text/csv", body)
}

func (h *Handler) MetadataJSON(c *gin.Context) {
	body, err := MetadataJSON(h.source)
	if err != nil {
		c.Error(apiError.Internal(err))
		return
	}
	sendAttachment(c, "metadata.json", "application/json", body)
}

func (h *Handler) MetadataHTML(c *gin.Context) {
	body, err := MetadataHTML(h.source)
	if err != nil {
		c.Error(apiError.Internal(err))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", body)
}

func (h *Handler) ProcDataCSV(c *gin.Context) {
	body, err := ProcDataCSV(h.source)
	if err != nil {
		c.Error(apiError.Internal(err))
		return
	}
	sendAttachment(c, "processed_data.csv", "text/csv", body)
}

func (h *Handler) ProcDataJSON(c *gin.Context) {
	body, err := ProcDataJSON(h.source)
	if err != nil {
		c.Error(apiError.Internal(err))
		return
	}
	sendAttachment(c, "processed_data.json", "application/json", body)
}

func (h *Handler) ProcDataHTML(c *gin.Context) {
	body, err := ProcDataHTML(h.source)
	if err != nil {
		c.Error(apiError.Internal(err))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", body)
}

func (h *Handler) Readme(c *gin.Context) {
	sendAttachment(c, "README.txt", "text/plain", []byte(ReadmeText))
}

func sendAttachment(c *gin.Context, filename, contentType string, body []byte) {
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, body)
}
