package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/soullink/fay-gateway/internal/content"
	"github.com/soullink/fay-gateway/internal/interact"
	"github.com/soullink/fay-gateway/internal/stream"
)

// Replies of the legacy panel endpoints.
const (
	msgStopped     = "已停止说话"
	msgPassOK      = "成功"
	msgPassFailed  = "未知原因出错"
	msgGreeted     = "问候成功"
	msgWoken       = "已唤醒"
	msgAdopted     = "采纳成功"
	msgMissingID   = "缺少消息ID"
	msgNotFound    = "消息不存在"
	msgAlreadyDone = "消息已采纳"
)

// shanghai is the zone timetext is rendered in.
var shanghai = time.FixedZone("CST", 8*60*60)

const timetextLayout = "2006-01-02 15:04:05.000"

type sendRequest struct {
	Username    string `json:"username"`
	Msg         string `json:"msg"`
	PureMode    bool   `json:"pure_mode"`
	Observation string `json:"observation"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]any{"result": "error", "message": err.Error()})
		return
	}
	_, err := s.dispatcher.OnInteract(r.Context(), interact.Interact{
		Kind:        interact.KindText,
		Username:    req.Username,
		Message:     req.Msg,
		Observation: req.Observation,
		PureMode:    req.PureMode,
	})
	if err != nil {
		s.respondJSON(w, dispatchStatus(err), map[string]any{"result": "error", "message": err.Error()})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"result": "successful"})
}

type userRequest struct {
	Username    string `json:"username"`
	Observation string `json:"observation"`
}

func (s *Server) handleStopTalking(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "msg": err.Error()})
		return
	}
	s.dispatcher.Interrupt(req.Username)
	s.respondJSON(w, http.StatusOK, map[string]any{"status": "success", "data": "interrupted", "msg": msgStopped})
}

type transparentPassRequest struct {
	User  string `json:"user"`
	Text  string `json:"text"`
	Audio string `json:"audio"`
}

func (s *Server) handleTransparentPass(w http.ResponseWriter, r *http.Request) {
	var req transparentPassRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]any{"code": http.StatusBadRequest, "message": err.Error()})
		return
	}
	_, err := s.dispatcher.OnInteract(r.Context(), interact.Interact{
		Kind:     interact.KindTransparentPass,
		Username: req.User,
		Text:     req.Text,
		Audio:    req.Audio,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("user", req.User).Msg("transparent pass rejected")
		s.respondJSON(w, http.StatusInternalServerError, map[string]any{"code": http.StatusInternalServerError, "message": msgPassFailed})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"code": http.StatusOK, "message": msgPassOK})
}

func (s *Server) handleGreet(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "msg": err.Error()})
		return
	}
	username := stream.NormalizeUsername(req.Username)
	cid, err := s.dispatcher.OnInteract(r.Context(), interact.Interact{
		Kind:        interact.KindHello,
		Username:    username,
		Observation: req.Observation,
	})
	if err != nil {
		s.respondJSON(w, dispatchStatus(err), map[string]any{"status": "error", "msg": err.Error()})
		return
	}
	reader, captured := s.registry.Subscribe(username)
	t := turnStream{username: username, cid: cid, captured: captured, reader: reader}
	var res stream.Result
	if !t.superseded() {
		ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
		res, err = stream.Collect(ctx, reader, s.filter(t))
		cancel()
	}
	switch {
	case err == nil, errors.Is(err, stream.ErrSuperseded):
	case errors.Is(err, context.DeadlineExceeded):
		s.respondJSON(w, http.StatusGatewayTimeout, map[string]any{"status": "error", "msg": "timed out waiting for greeting"})
		return
	default:
		s.respondJSON(w, http.StatusInternalServerError, map[string]any{"status": "error", "msg": err.Error()})
		return
	}
	if res.Err != "" {
		s.respondJSON(w, http.StatusBadGateway, map[string]any{"status": "error", "msg": res.Err})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"status": "success", "data": res.Text, "msg": msgGreeted})
}

func (s *Server) handleWake(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "msg": err.Error()})
		return
	}
	if _, err := s.dispatcher.OnInteract(r.Context(), interact.Interact{Kind: interact.KindWake, Username: req.Username}); err != nil {
		s.respondJSON(w, dispatchStatus(err), map[string]any{"status": "error", "msg": err.Error()})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"status": "success", "msg": msgWoken})
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	_ = decodeBody(r, &req)
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status": true,
		"awake":  s.dispatcher.Awake(req.Username),
		"uptime": int64(time.Since(s.startedAt).Seconds()),
	})
}

type getMessagesRequest struct {
	Username string `json:"username"`
	Limit    int    `json:"limit"`
	ModelID  string `json:"model_id"`
}

type messageItem struct {
	Type       string `json:"type"`
	Way        string `json:"way"`
	Content    string `json:"content"`
	CreateTime int64  `json:"createtime"`
	TimeText   string `json:"timetext"`
	Username   string `json:"username"`
	ID         int64  `json:"id"`
	IsAdopted  int    `json:"is_adopted"`
}

func toMessageItem(m content.Message) messageItem {
	adopted := 0
	if m.IsAdopted {
		adopted = 1
	}
	return messageItem{
		Type:       m.Type,
		Way:        m.Way,
		Content:    m.Content,
		CreateTime: m.CreatedAt.Unix(),
		TimeText:   m.CreatedAt.In(shanghai).Format(timetextLayout),
		Username:   m.Username,
		ID:         m.ID,
		IsAdopted:  adopted,
	}
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	var req getMessagesRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	msgs, err := s.content.List(r.Context(), content.ListQuery{
		Way:      content.WayAll,
		Order:    "desc",
		Limit:    req.Limit,
		Username: strings.TrimSpace(req.Username),
		ModelID:  strings.TrimSpace(req.ModelID),
	})
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	items := make([]messageItem, len(msgs))
	for i, m := range msgs {
		items[len(msgs)-1-i] = toMessageItem(m)
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"list": items})
}

type adoptRequest struct {
	ID int64 `json:"id"`
}

func (s *Server) handleAdoptMessage(w http.ResponseWriter, r *http.Request) {
	var req adoptRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "msg": err.Error()})
		return
	}
	if req.ID <= 0 {
		s.respondJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "msg": msgMissingID})
		return
	}
	ctx := r.Context()
	msg, err := s.content.GetContentByID(ctx, req.ID)
	if errors.Is(err, content.ErrNotFound) {
		s.respondJSON(w, http.StatusNotFound, map[string]any{"status": "error", "msg": msgNotFound})
		return
	}
	if err != nil {
		s.respondJSON(w, http.StatusInternalServerError, map[string]any{"status": "error", "msg": err.Error()})
		return
	}
	if err := s.content.Adopt(ctx, req.ID); err != nil {
		status, text := http.StatusInternalServerError, err.Error()
		if errors.Is(err, content.ErrAlreadyAdopted) {
			status, text = http.StatusBadRequest, msgAlreadyDone
		}
		s.respondJSON(w, status, map[string]any{"status": "error", "msg": text})
		return
	}

	if s.qa != nil {
		prev, err := s.content.PreviousUserMessage(ctx, req.ID)
		switch {
		case errors.Is(err, content.ErrNotFound):
			s.logger.Debug().Int64("id", req.ID).Msg("adopted message has no preceding question")
		case err != nil:
			s.logger.Warn().Err(err).Int64("id", req.ID).Msg("previous user message lookup failed")
		default:
			if err := s.qa.Record(prev.Content, msg.Content); err != nil {
				s.logger.Warn().Err(err).Int64("id", req.ID).Msg("record adopted answer")
			}
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"status": "success", "msg": msgAdopted})
}
