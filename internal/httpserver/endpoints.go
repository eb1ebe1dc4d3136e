package httpserver

import (
	"net/http"

	"github.com/soullink/fay-gateway/internal/httpserver/protocol"
)

type openaiEndpoint struct {
	server *Server
}

func newOpenAIEndpoint(server *Server) protocol.Endpoint {
	return &openaiEndpoint{server: server}
}

func (e *openaiEndpoint) Name() string { return "openai_chat" }

func (e *openaiEndpoint) Routes() []protocol.EndpointRoute {
	chat := http.HandlerFunc(e.server.HandleChatCompletions)
	return []protocol.EndpointRoute{
		{Method: http.MethodPost, Path: "/v1/chat/completions", Handler: chat},
		{Method: http.MethodPost, Path: "/api/send/v1/chat/completions", Handler: chat},
		{Method: http.MethodGet, Path: "/v1/models", Handler: http.HandlerFunc(e.server.HandleModels)},
	}
}

type interactEndpoint struct {
	server *Server
}

func newInteractEndpoint(server *Server) protocol.Endpoint {
	return &interactEndpoint{server: server}
}

func (e *interactEndpoint) Name() string { return "interact" }

func (e *interactEndpoint) Routes() []protocol.EndpointRoute {
	s := e.server
	return []protocol.EndpointRoute{
		{Method: http.MethodPost, Path: "/api/send", Handler: http.HandlerFunc(s.handleSend)},
		{Method: http.MethodPost, Path: "/to-stop-talking", Handler: http.HandlerFunc(s.handleStopTalking)},
		{Method: http.MethodPost, Path: "/transparent-pass", Handler: http.HandlerFunc(s.handleTransparentPass)},
		{Method: http.MethodPost, Path: "/to-greet", Handler: http.HandlerFunc(s.handleGreet)},
		{Method: http.MethodPost, Path: "/to-wake", Handler: http.HandlerFunc(s.handleWake)},
		{Method: http.MethodPost, Path: "/api/get-run-status", Handler: http.HandlerFunc(s.handleRunStatus)},
	}
}

type messageEndpoint struct {
	server *Server
}

func newMessageEndpoint(server *Server) protocol.Endpoint {
	if server.content == nil {
		return nil
	}
	return &messageEndpoint{server: server}
}

func (e *messageEndpoint) Name() string { return "messages" }

func (e *messageEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodPost, Path: "/api/get-msg", Handler: http.HandlerFunc(e.server.handleGetMessages)},
		{Method: http.MethodPost, Path: "/api/adopt-msg", Handler: http.HandlerFunc(e.server.handleAdoptMessage)},
	}
}

type modelEndpoint struct {
	server *Server
}

func newModelEndpoint(server *Server) protocol.Endpoint {
	if server.models == nil {
		return nil
	}
	return &modelEndpoint{server: server}
}

func (e *modelEndpoint) Name() string { return "models" }

func (e *modelEndpoint) Routes() []protocol.EndpointRoute {
	s := e.server
	routes := []protocol.EndpointRoute{
		{Method: http.MethodPost, Path: "/api/models/create", Handler: http.HandlerFunc(s.handleModelCreate)},
		{Method: http.MethodPost, Path: "/api/models/list", Handler: http.HandlerFunc(s.handleModelList)},
		{Method: http.MethodPost, Path: "/api/models/detail", Handler: http.HandlerFunc(s.handleModelDetail)},
		{Method: http.MethodPost, Path: "/api/models/update", Handler: http.HandlerFunc(s.handleModelUpdate)},
		{Method: http.MethodPost, Path: "/api/models/delete", Handler: http.HandlerFunc(s.handleModelDelete)},
		{Method: http.MethodPost, Path: "/api/models/clear-history", Handler: http.HandlerFunc(s.handleModelClearHistory)},
		{Method: http.MethodPost, Path: "/api/models/select", Handler: http.HandlerFunc(s.handleModelSelect)},
		{Method: http.MethodPost, Path: "/api/models/generate-attributes", Handler: http.HandlerFunc(s.handleGenerateAttributes)},
	}
	if s.assets != nil {
		routes = append(routes,
			protocol.EndpointRoute{Method: http.MethodPost, Path: "/api/models/upload-model", Handler: http.HandlerFunc(s.handleModelUpload)},
			protocol.EndpointRoute{Method: http.MethodPost, Path: "/api/models/upload", Handler: http.HandlerFunc(s.handleModelUpload)},
			protocol.EndpointRoute{Method: http.MethodGet, Path: "/models/{filename}", Handler: http.HandlerFunc(s.handleServeAsset)},
		)
	}
	return routes
}

type directLLMEndpoint struct {
	server *Server
}

func newDirectLLMEndpoint(server *Server) protocol.Endpoint {
	if server.llm == nil {
		return nil
	}
	return &directLLMEndpoint{server: server}
}

func (e *directLLMEndpoint) Name() string { return "direct_llm" }

func (e *directLLMEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodPost, Path: "/api/direct-llm", Handler: http.HandlerFunc(e.server.handleDirectLLM)},
		{Method: http.MethodPost, Path: "/api/direct-llm-stream", Handler: http.HandlerFunc(e.server.handleDirectLLMStream)},
	}
}

type healthEndpoint struct {
	server *Server
}

func newHealthEndpoint(server *Server) protocol.Endpoint {
	return &healthEndpoint{server: server}
}

func (e *healthEndpoint) Name() string { return "health" }

func (e *healthEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodGet, Path: "/health", Handler: http.HandlerFunc(e.server.HandleHealth)},
		{Method: http.MethodGet, Path: "/metrics", Handler: http.HandlerFunc(e.server.HandleMetrics)},
	}
}
