package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mobile-luiz/VacinACS/internal/registry"
	syncengine "github.com/mobile-luiz/VacinACS/internal/sync"
	"github.com/mobile-luiz/VacinACS/internal/vaccines"
	"go.uber.org/zap"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

var (
	errMissingIndividualStore = errors.New("individual store dependency required")
	errMissingDoseStore       = errors.New("dose store dependency required")
	errMissingDoseSyncer      = errors.New("dose syncer dependency required")
	errMissingSyncControl     = errors.New("sync control dependency required")
)

// DoseSyncer is the per-individual dose surface of the reconciliation engine.
type DoseSyncer interface {
	SyncDoses(ctx context.Context, cns string) error
	DeleteDoseRemote(ctx context.Context, dose vaccines.Dose) error
	RepairDoseCard(ctx context.Context, cns string) ([]vaccines.Dose, error)
}

// SyncControl is the orchestration surface exposed over HTTP.
type SyncControl interface {
	TriggerResync()
	TriggerDeletionSync()
	Status() syncengine.Status
}

// Dependencies wires the HTTP layer. AgentUID scopes listings to the agent
// this process syncs for.
type Dependencies struct {
	Individuals *registry.Store
	Doses       *vaccines.Store
	DoseSyncer  DoseSyncer
	SyncControl SyncControl
	AgentUID    string
	Logger      *zap.Logger
}

// NewHTTPHandler builds the gin router serving the agent-facing API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Individuals == nil {
		return nil, errMissingIndividualStore
	}
	if deps.Doses == nil {
		return nil, errMissingDoseStore
	}
	if deps.DoseSyncer == nil {
		return nil, errMissingDoseSyncer
	}
	if deps.SyncControl == nil {
		return nil, errMissingSyncControl
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		individuals: deps.Individuals,
		doses:       deps.Doses,
		doseSyncer:  deps.DoseSyncer,
		syncControl: deps.SyncControl,
		agentUID:    deps.AgentUID,
		logger:      logger,
	}

	router.GET("/healthz", handler.handleHealth)

	router.POST("/sync/run", handler.handleSyncRun)
	router.GET("/sync/status", handler.handleSyncStatus)

	router.GET("/individuos", handler.handleListIndividuals)
	router.POST("/individuos", handler.handleCreateIndividual)
	router.DELETE("/individuos/:cns", handler.handleDeleteIndividual)
	router.PUT("/individuos/:cns/visita", handler.handleUpdateVisit)
	router.GET("/individuos/:cns/vacinas", handler.handleDoseCard)
	router.PUT("/individuos/:cns/vacinas/:key", handler.handleUpsertDose)
	router.DELETE("/individuos/:cns/vacinas/:key", handler.handleDeleteDose)

	return router, nil
}

type httpHandler struct {
	individuals *registry.Store
	doses       *vaccines.Store
	doseSyncer  DoseSyncer
	syncControl SyncControl
	agentUID    string
	logger      *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleSyncRun(c *gin.Context) {
	h.syncControl.TriggerResync()
	c.JSON(http.StatusAccepted, h.syncControl.Status())
}

func (h *httpHandler) handleSyncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.syncControl.Status())
}

type individualPayload struct {
	CNS          string `json:"cns"`
	Name         string `json:"nome"`
	BirthDate    string `json:"dataNascimento"`
	MotherName   string `json:"nomeMae"`
	FatherName   string `json:"nomePai"`
	Phone        string `json:"celular"`
	Email        string `json:"email"`
	Address      string `json:"endereco"`
	FamilyRecord string `json:"prontuarioFamilia"`
}

func (h *httpHandler) handleListIndividuals(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	offset := parsePositiveInt(c.Query("offset"), 0)
	limit := parsePositiveInt(c.Query("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	var (
		individuals []registry.Individual
		err         error
	)
	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, ok := parseVisitStatus(rawStatus)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status"})
			return
		}
		individuals, err = h.individuals.ListByVisitStatus(c.Request.Context(), h.agentUID, status, query)
	} else if query != "" || offset > 0 {
		individuals, err = h.individuals.SearchByAgent(c.Request.Context(), h.agentUID, query, offset, limit)
	} else {
		individuals, err = h.individuals.ListActiveByAgent(c.Request.Context(), h.agentUID)
	}
	if err != nil {
		h.logger.Error("listing individuals failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"individuos": individuals})
}

func (h *httpHandler) handleCreateIndividual(c *gin.Context) {
	var payload individualPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	cns, err := registry.NewCNS(payload.CNS)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cns"})
		return
	}
	if strings.TrimSpace(payload.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_name"})
		return
	}

	individual := registry.Individual{
		CNS:             cns.String(),
		Name:            strings.TrimSpace(payload.Name),
		BirthDate:       payload.BirthDate,
		MotherName:      payload.MotherName,
		FatherName:      payload.FatherName,
		Phone:           payload.Phone,
		Email:           payload.Email,
		Address:         payload.Address,
		FamilyRecord:    payload.FamilyRecord,
		VisitStatus:     registry.VisitStatusNone,
		RegisteredByUID: h.agentUID,
	}
	if err := h.individuals.Insert(c.Request.Context(), individual); err != nil {
		if errors.Is(err, registry.ErrDuplicateCNS) {
			c.JSON(http.StatusConflict, gin.H{"error": "cns_already_registered"})
			return
		}
		h.logger.Error("creating individual failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
		return
	}

	h.syncControl.TriggerResync()
	c.JSON(http.StatusCreated, individual)
}

func (h *httpHandler) handleDeleteIndividual(c *gin.Context) {
	cns := c.Param("cns")
	if err := h.individuals.MarkForDeletion(c.Request.Context(), cns); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.logger.Error("marking individual for deletion failed",
			zap.String("cns", cns),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed"})
		return
	}

	h.syncControl.TriggerDeletionSync()
	c.JSON(http.StatusAccepted, gin.H{"cns": cns, "status": "deletion_pending"})
}

type visitPayload struct {
	Status    string `json:"statusVisita"`
	VisitDate string `json:"dataVisita"`
}

func (h *httpHandler) handleUpdateVisit(c *gin.Context) {
	cns := c.Param("cns")
	var payload visitPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	status, ok := parseVisitStatus(payload.Status)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status"})
		return
	}

	if err := h.individuals.UpdateVisitStatus(c.Request.Context(), cns, status, payload.VisitDate); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.logger.Error("updating visit status failed",
			zap.String("cns", cns),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update_failed"})
		return
	}

	h.syncControl.TriggerResync()
	c.JSON(http.StatusOK, gin.H{"cns": cns, "statusVisita": string(status)})
}

// handleDoseCard returns the individual's full card: the canonical calendar
// merged with the saved rows, sequence inconsistencies repaired and queued
// for re-sync.
func (h *httpHandler) handleDoseCard(c *gin.Context) {
	cns := c.Param("cns")
	if _, err := h.individuals.FindByCNS(c.Request.Context(), cns); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.logger.Error("loading individual failed", zap.String("cns", cns), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load_failed"})
		return
	}

	card, err := h.doseSyncer.RepairDoseCard(c.Request.Context(), cns)
	if err != nil {
		h.logger.Error("building dose card failed", zap.String("cns", cns), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "card_failed"})
		return
	}

	if err := h.doseSyncer.SyncDoses(c.Request.Context(), cns); err != nil {
		h.logger.Warn("dose re-sync after card build failed",
			zap.String("cns", cns),
			zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"cns": cns, "vacinas": card})
}

type dosePayload struct {
	VaccineName    string `json:"nomeVacina"`
	DoseLabel      string `json:"dose"`
	Status         string `json:"status"`
	AppliedAt      string `json:"dataAplicacao"`
	Lot            string `json:"lote"`
	Laboratory     string `json:"labProdut"`
	Facility       string `json:"unidade"`
	AgentSignature string `json:"assinaturaAcs"`
	ScheduledFor   string `json:"dataAgendada"`
}

func (h *httpHandler) handleUpsertDose(c *gin.Context) {
	cns := c.Param("cns")
	key := c.Param("key")

	var payload dosePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	status, ok := parseDoseStatus(payload.Status)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status"})
		return
	}
	if payload.VaccineName == "" || payload.DoseLabel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_dose"})
		return
	}
	if key != vaccines.DoseKey(payload.VaccineName, payload.DoseLabel) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key_mismatch"})
		return
	}
	if _, err := h.individuals.FindByCNS(c.Request.Context(), cns); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.logger.Error("loading individual failed", zap.String("cns", cns), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load_failed"})
		return
	}

	dose := vaccines.Dose{
		CNS:            cns,
		Key:            key,
		VaccineName:    payload.VaccineName,
		DoseLabel:      payload.DoseLabel,
		Status:         status,
		AppliedAt:      payload.AppliedAt,
		Lot:            payload.Lot,
		Laboratory:     payload.Laboratory,
		Facility:       payload.Facility,
		AgentSignature: payload.AgentSignature,
		ScheduledFor:   payload.ScheduledFor,
	}
	if err := h.doses.SaveOrUpdate(c.Request.Context(), dose); err != nil {
		h.logger.Error("saving dose failed",
			zap.String("cns", cns),
			zap.String("vacina_key", key),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save_failed"})
		return
	}

	if err := h.doseSyncer.SyncDoses(c.Request.Context(), cns); err != nil {
		h.logger.Warn("dose sync failed, row stays queued",
			zap.String("cns", cns),
			zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"cns": cns, "vacinaKey": key, "status": string(status)})
}

// handleDeleteDose removes a booked dose locally and then drops its remote
// node. The local row disappears even when the remote delete fails; the
// engine logs the miss.
func (h *httpHandler) handleDeleteDose(c *gin.Context) {
	cns := c.Param("cns")
	key := c.Param("key")

	dose, err := h.doses.Get(c.Request.Context(), cns, key)
	if err != nil {
		if errors.Is(err, vaccines.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.logger.Error("loading dose failed",
			zap.String("cns", cns),
			zap.String("vacina_key", key),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load_failed"})
		return
	}

	if err := h.doses.Delete(c.Request.Context(), cns, key); err != nil {
		h.logger.Error("deleting dose failed",
			zap.String("cns", cns),
			zap.String("vacina_key", key),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed"})
		return
	}

	if err := h.doseSyncer.DeleteDoseRemote(c.Request.Context(), dose); err != nil {
		h.logger.Warn("remote dose deletion failed",
			zap.String("cns", cns),
			zap.String("vacina_key", key),
			zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"cns": cns, "vacinaKey": key, "status": "deleted"})
}

func parseVisitStatus(value string) (registry.VisitStatus, bool) {
	switch registry.VisitStatus(strings.TrimSpace(value)) {
	case registry.VisitStatusNone:
		return registry.VisitStatusNone, true
	case registry.VisitStatusScheduled:
		return registry.VisitStatusScheduled, true
	case registry.VisitStatusVisited:
		return registry.VisitStatusVisited, true
	default:
		return "", false
	}
}

func parseDoseStatus(value string) (vaccines.DoseStatus, bool) {
	switch vaccines.DoseStatus(strings.TrimSpace(value)) {
	case vaccines.DoseStatusPending:
		return vaccines.DoseStatusPending, true
	case vaccines.DoseStatusScheduled:
		return vaccines.DoseStatusScheduled, true
	case vaccines.DoseStatusApplied:
		return vaccines.DoseStatusApplied, true
	case vaccines.DoseStatusCancelled:
		return vaccines.DoseStatusCancelled, true
	default:
		return "", false
	}
}

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
