package dashboard

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"

	"guildwarden/internal/guildconfig"
	"guildwarden/internal/scheduler"
	"guildwarden/internal/storage"
)

const (
	maxBodyBytes    = 256 << 10
	defaultStatDays = 7
	maxStatDays     = 90
)

type scheduledView struct {
	ID              int64      `json:"id"`
	ChannelID       string     `json:"channelId"`
	Message         string     `json:"message"`
	Embed           bool       `json:"embed"`
	EmbedColor      *string    `json:"embedColor"`
	CronExpression  *string    `json:"cronExpression"`
	IntervalMinutes *int       `json:"intervalMinutes"`
	NextRun         time.Time  `json:"nextRun"`
	LastRun         *time.Time `json:"lastRun"`
	Enabled         bool       `json:"enabled"`
	FailureCount    int        `json:"failureCount"`
	LastError       *string    `json:"lastError"`
	CreatedBy       string     `json:"createdBy"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func toView(msg storage.ScheduledMessage) scheduledView {
	return scheduledView{
		ID:              msg.ID,
		ChannelID:       msg.ChannelID,
		Message:         msg.Message,
		Embed:           msg.Embed,
		EmbedColor:      msg.EmbedColor,
		CronExpression:  msg.CronExpression,
		IntervalMinutes: msg.IntervalMinutes,
		NextRun:         msg.NextRun,
		LastRun:         msg.LastRun,
		Enabled:         msg.Enabled,
		FailureCount:    msg.FailureCount,
		LastError:       msg.LastError,
		CreatedBy:       msg.CreatedBy,
		CreatedAt:       msg.CreatedAt,
	}
}

func (s *Server) me(w http.ResponseWriter, req bunrouter.Request) error {
	session, _ := sessionFrom(req.Context())
	return writeJSON(w, http.StatusOK, session)
}

func (s *Server) getConfigSection(w http.ResponseWriter, req bunrouter.Request) error {
	guildID, section := req.Param("id"), req.Param("section")
	data, err := s.configs.GetSection(req.Context(), guildID, section)
	if err != nil {
		if errors.Is(err, guildconfig.ErrUnknownSection) {
			return writeError(w, http.StatusNotFound, "Unknown config section")
		}
		s.logger.Error("Failed to read config section", zap.String("guild_id", guildID), zap.String("section", section), zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "Internal server error")
	}
	if data == nil {
		return writeError(w, http.StatusNotFound, "Config section not found")
	}
	return writeJSON(w, http.StatusOK, data)
}

func (s *Server) patchConfigSection(w http.ResponseWriter, req bunrouter.Request) error {
	guildID, section := req.Param("id"), req.Param("section")

	var partial map[string]any
	if err := decodeBody(w, req, &partial); err != nil || partial == nil {
		return writeError(w, http.StatusBadRequest, "Body must be a JSON object")
	}

	data, err := s.configs.UpdateSection(req.Context(), guildID, section, partial)
	if err != nil {
		var verr *guildconfig.ValidationError
		switch {
		case errors.As(err, &verr):
			return writeValidation(w, verr.Errors)
		case errors.Is(err, guildconfig.ErrUnknownSection):
			return writeError(w, http.StatusNotFound, "Unknown config section")
		}
		s.logger.Error("Failed to update config section", zap.String("guild_id", guildID), zap.String("section", section), zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "Internal server error")
	}
	return writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

func (s *Server) listScheduled(w http.ResponseWriter, req bunrouter.Request) error {
	guildID := req.Param("id")
	messages, err := s.schedules.List(req.Context(), guildID)
	if err != nil {
		s.logger.Error("Failed to list scheduled messages", zap.String("guild_id", guildID), zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "Internal server error")
	}
	views := make([]scheduledView, 0, len(messages))
	for _, msg := range messages {
		views = append(views, toView(msg))
	}
	return writeJSON(w, http.StatusOK, views)
}

func (s *Server) createScheduled(w http.ResponseWriter, req bunrouter.Request) error {
	session, _ := sessionFrom(req.Context())

	var body scheduler.CreateRequest
	if err := decodeBody(w, req, &body); err != nil {
		return writeError(w, http.StatusBadRequest, "Body must be a JSON object")
	}
	body.GuildID = req.Param("id")
	body.CreatedBy = session.UserID

	id, err := s.schedules.Create(req.Context(), body)
	if err != nil {
		var verr *guildconfig.ValidationError
		switch {
		case errors.Is(err, scheduler.ErrNoSchedule):
			return writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &verr):
			return writeValidation(w, verr.Errors)
		}
		s.logger.Error("Failed to create scheduled message", zap.String("guild_id", body.GuildID), zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "Internal server error")
	}
	return writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": map[string]any{"id": id}})
}

func (s *Server) deleteScheduled(w http.ResponseWriter, req bunrouter.Request) error {
	guildID := req.Param("id")
	id, err := strconv.ParseInt(req.Param("msgId"), 10, 64)
	if err != nil {
		return writeError(w, http.StatusBadRequest, "Invalid scheduled message id")
	}

	deleted, err := s.schedules.Delete(req.Context(), guildID, id)
	if err != nil {
		s.logger.Error("Failed to delete scheduled message", zap.String("guild_id", guildID), zap.Int64("scheduled_id", id), zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "Internal server error")
	}
	if !deleted {
		return writeError(w, http.StatusNotFound, "Scheduled message not found")
	}
	return writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) modStats(w http.ResponseWriter, req bunrouter.Request) error {
	guildID := req.Param("id")
	days := defaultStatDays
	if raw := req.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return writeError(w, http.StatusBadRequest, "days must be a positive integer")
		}
		days = min(parsed, maxStatDays)
	}

	report, err := s.stats.Report(req.Context(), guildID, time.Now().AddDate(0, 0, -days))
	if err != nil {
		s.logger.Error("Failed to build moderation report", zap.String("guild_id", guildID), zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "Internal server error")
	}
	return writeJSON(w, http.StatusOK, report)
}

func decodeBody(w http.ResponseWriter, req bunrouter.Request, out any) error {
	body := http.MaxBytesReader(w, req.Body, maxBodyBytes)
	return sonic.ConfigStd.NewDecoder(body).Decode(out)
}
