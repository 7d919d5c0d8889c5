package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/meintechblog/eos-backend/internal/errors"
	"github.com/meintechblog/eos-backend/pkg/ingest"
)

// inputHandlers implements GET /eos/input/{channel_or_path} and
// POST /api/input/http/push, translated from
// original_source's app/api/input_ingest.py.
type inputHandlers struct {
	channels *ingest.Store
	pipeline *ingest.Pipeline
	logger   *zap.Logger
}

type httpInputPushRequest struct {
	ChannelCode *string `json:"channel_code"`
	InputKey    string  `json:"input_key" validate:"required"`
	Value       any     `json:"value"`
	Payload     any     `json:"payload"`
	Ts          any     `json:"ts"`
	Timestamp   any     `json:"timestamp"`
}

type httpInputIngestResponse struct {
	Accepted       bool      `json:"accepted"`
	ChannelCode    string    `json:"channel_code"`
	ChannelType    string    `json:"channel_type"`
	InputKey       string    `json:"input_key"`
	NormalizedKey  string    `json:"normalized_key"`
	MappingMatched bool      `json:"mapping_matched"`
	MappingID      *int64    `json:"mapping_id"`
	EventTs        time.Time `json:"event_ts"`
}

func toResponse(r ingest.Result) httpInputIngestResponse {
	return httpInputIngestResponse{
		Accepted:       r.Accepted,
		ChannelCode:    r.ChannelCode,
		ChannelType:    r.ChannelType,
		InputKey:       r.InputKey,
		NormalizedKey:  r.NormalizedKey,
		MappingMatched: r.MappingMatched,
		MappingID:      r.MappingID,
		EventTs:        r.EventTs,
	}
}

// getPush implements GET /eos/input/{channel_or_path}?value=&ts=.
func (h *inputHandlers) getPush(w http.ResponseWriter, r *http.Request) {
	rawPath := chi.URLParam(r, "*")
	pathValue := strings.Trim(rawPath, "/")
	if pathValue == "" {
		writeError(w, h.logger, apperrors.Validation("input key is required"))
		return
	}

	channel, keyPath, err := h.resolveChannelAndKeyPath(r, pathValue)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	key, payloadText, err := extractKeyValueFromPath(keyPath, r.URL.Query().Get("value"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	explicitTs, err := coerceTimestamp(firstNonEmpty(r.URL.Query().Get("ts"), r.URL.Query().Get("timestamp")))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.pipeline.Ingest(r.Context(), *channel, key, payloadText, time.Now().UTC(), map[string]any{
		"source": "http", "method": "GET", "remote_addr": r.RemoteAddr, "path": r.URL.Path,
	}, explicitTs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toResponse(result))
}

// postPush implements POST /api/input/http/push.
func (h *inputHandlers) postPush(w http.ResponseWriter, r *http.Request) {
	var req httpInputPushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperrors.Validation("invalid request body"))
		return
	}
	if strings.TrimSpace(req.InputKey) == "" {
		writeError(w, h.logger, apperrors.Validation("input_key is required"))
		return
	}

	channel, err := h.resolveHTTPChannel(r, req.ChannelCode)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var payloadText string
	switch {
	case req.Payload != nil:
		encoded, marshalErr := json.Marshal(req.Payload)
		if marshalErr != nil {
			writeError(w, h.logger, apperrors.Internal("encode payload"))
			return
		}
		payloadText = string(encoded)
	case req.Value != nil:
		if s, ok := req.Value.(string); ok {
			payloadText = s
		} else {
			encoded, marshalErr := json.Marshal(req.Value)
			if marshalErr != nil {
				writeError(w, h.logger, apperrors.Internal("encode value"))
				return
			}
			payloadText = string(encoded)
		}
	default:
		writeError(w, h.logger, apperrors.Validation("provide either payload or value"))
		return
	}

	explicitTs, err := coerceTimestampAny(firstNonNil(req.Ts, req.Timestamp))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.pipeline.Ingest(r.Context(), *channel, req.InputKey, payloadText, time.Now().UTC(), map[string]any{
		"source": "http", "method": "POST", "remote_addr": r.RemoteAddr,
	}, explicitTs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toResponse(result))
}

func (h *inputHandlers) resolveChannelAndKeyPath(r *http.Request, pathValue string) (*ingest.Channel, string, error) {
	parts := strings.SplitN(pathValue, "/", 2)
	if len(parts) == 2 {
		candidate, err := h.channels.ChannelByCode(r.Context(), parts[0])
		if err != nil {
			return nil, "", err
		}
		if candidate != nil && candidate.ChannelType == "http" {
			if !candidate.Enabled {
				return nil, "", apperrors.Conflict("HTTP channel '" + parts[0] + "' is disabled")
			}
			return candidate, parts[1], nil
		}
	}
	channel, err := h.resolveHTTPChannel(r, nil)
	if err != nil {
		return nil, "", err
	}
	return channel, pathValue, nil
}

func (h *inputHandlers) resolveHTTPChannel(r *http.Request, channelCode *string) (*ingest.Channel, error) {
	if channelCode != nil {
		channel, err := h.channels.ChannelByCode(r.Context(), *channelCode)
		if err != nil {
			return nil, err
		}
		if channel == nil || channel.ChannelType != "http" {
			return nil, apperrors.NotFound("HTTP channel '" + *channelCode + "' not found")
		}
		if !channel.Enabled {
			return nil, apperrors.Conflict("HTTP channel '" + *channelCode + "' is disabled")
		}
		return channel, nil
	}

	defaultChannel, err := h.channels.DefaultChannel(r.Context(), "http")
	if err != nil {
		return nil, err
	}
	if defaultChannel == nil {
		return nil, apperrors.Unavailable("no default HTTP input channel configured")
	}
	if !defaultChannel.Enabled {
		return nil, apperrors.Conflict("default HTTP input channel is disabled")
	}
	return defaultChannel, nil
}

func extractKeyValueFromPath(keyPath, queryValue string) (string, string, error) {
	if idx := strings.Index(keyPath, "="); idx >= 0 {
		key := strings.TrimSpace(keyPath[:idx])
		if key == "" {
			return "", "", apperrors.Validation("input key is empty")
		}
		return key, keyPath[idx+1:], nil
	}
	if queryValue == "" {
		return "", "", apperrors.Validation("value query parameter is required when path does not contain '=value'")
	}
	key := strings.TrimSpace(keyPath)
	if key == "" {
		return "", "", apperrors.Validation("input key is empty")
	}
	return key, queryValue, nil
}

func coerceTimestamp(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	return coerceTimestampAny(raw)
}

func coerceTimestampAny(value any) (*time.Time, error) {
	if value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case float64:
		return epochToTime(v)
	case string:
		raw := strings.TrimSpace(v)
		if raw == "" {
			return nil, nil
		}
		if numeric, err := strconv.ParseFloat(raw, 64); err == nil {
			return epochToTime(numeric)
		}
		normalized := raw
		if strings.HasSuffix(normalized, "Z") {
			normalized = normalized[:len(normalized)-1] + "+00:00"
		}
		parsed, err := time.Parse(time.RFC3339, normalized)
		if err != nil {
			return nil, apperrors.Validation("invalid timestamp value: " + raw)
		}
		utc := parsed.UTC()
		return &utc, nil
	default:
		return nil, apperrors.Validation("invalid timestamp type")
	}
}

func epochToTime(value float64) (*time.Time, error) {
	seconds := value
	if value > 1_000_000_000_000 || value < -1_000_000_000_000 {
		seconds = value / 1000.0
	}
	t := time.Unix(0, 0).UTC().Add(time.Duration(seconds * float64(time.Second)))
	return &t, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonNil(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
