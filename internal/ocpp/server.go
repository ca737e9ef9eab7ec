// Package ocpp implements a minimal OCPP 1.6J central system over websocket.
//
// It accepts charge point connections, answers the calls a charge point
// sends on its own initiative (BootNotification, Heartbeat,
// StatusNotification, Authorize, Start/StopTransaction, MeterValues) and
// tracks per-charger connection, status and session energy for the snapshot
// builder. It issues no commands to the charge point.
package ocpp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/powersync/powersync/internal/device"
)

const (
	messageTypeCall       = 2
	messageTypeCallResult = 3
	messageTypeCallError  = 4

	heartbeatInterval = 300
)

// Server tracks the state of connected charge points. Register its handler
// under a path like /ocpp/; the last path element is the charger id.
type Server struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	lock     sync.RWMutex
	chargers map[string]*charger
}

type charger struct {
	connected     bool
	status        device.ChargerStatus
	meterStartWh  float64
	meterWh       float64
	inTransaction bool
	transactionID int
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			Subprotocols: []string{"ocpp1.6"},
			// charge points do not send browser origins
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		logger:   logger,
		chargers: make(map[string]*charger),
	}
}

// Chargers implements device.ChargerStatusProvider.
func (s *Server) Chargers(_ context.Context) ([]device.ChargerState, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	states := make([]device.ChargerState, 0, len(s.chargers))
	for id, c := range s.chargers {
		state := device.ChargerState{ID: id, Connected: c.connected, Status: c.status}
		if c.inTransaction {
			state.SessionEnergyKWh = (c.meterWh - c.meterStartWh) / 1000
		}
		states = append(states, state)
	}
	return states, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := path.Base(r.URL.Path)
	if id == "" || id == "/" || id == "." {
		http.Error(w, "missing charge point id", http.StatusBadRequest)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "charger", id, "err", err)
		return
	}
	s.logger.Info("charge point connected", "charger", id)
	s.setConnected(id, true)
	defer func() {
		s.setConnected(id, false)
		_ = conn.Close()
		s.logger.Info("charge point disconnected", "charger", id)
	}()
	s.serve(conn, id)
}

func (s *Server) serve(conn *websocket.Conn, id string) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		response, err := s.handleMessage(id, data)
		if err != nil {
			s.logger.Warn("invalid message", "charger", id, "err", err)
			continue
		}
		if response == nil {
			continue
		}
		if err = conn.WriteMessage(websocket.TextMessage, response); err != nil {
			return
		}
	}
}

// handleMessage parses one OCPP-J frame and builds the reply frame.
func (s *Server) handleMessage(id string, data []byte) ([]byte, error) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil || len(frame) < 3 {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	var messageType int
	if err := json.Unmarshal(frame[0], &messageType); err != nil {
		return nil, fmt.Errorf("malformed message type: %w", err)
	}
	if messageType != messageTypeCall {
		// we never issue calls, so results and errors are unexpected
		return nil, nil
	}
	if len(frame) < 4 {
		return nil, fmt.Errorf("call frame too short")
	}
	var uid, action string
	if err := json.Unmarshal(frame[1], &uid); err != nil {
		return nil, fmt.Errorf("malformed unique id: %w", err)
	}
	if err := json.Unmarshal(frame[2], &action); err != nil {
		return nil, fmt.Errorf("malformed action: %w", err)
	}

	payload, err := s.handleCall(id, action, frame[3])
	if err != nil {
		s.logger.Warn("call failed", "charger", id, "action", action, "err", err)
		return json.Marshal([]any{messageTypeCallError, uid, "InternalError", err.Error(), map[string]any{}})
	}
	s.logger.Debug("call handled", "charger", id, "action", action)
	return json.Marshal([]any{messageTypeCallResult, uid, payload})
}

func (s *Server) handleCall(id, action string, payload json.RawMessage) (any, error) {
	switch action {
	case "BootNotification":
		return map[string]any{
			"status":      "Accepted",
			"currentTime": time.Now().UTC().Format(time.RFC3339),
			"interval":    heartbeatInterval,
		}, nil
	case "Heartbeat":
		return map[string]any{"currentTime": time.Now().UTC().Format(time.RFC3339)}, nil
	case "Authorize":
		return map[string]any{"idTagInfo": map[string]any{"status": "Accepted"}}, nil
	case "StatusNotification":
		return s.statusNotification(id, payload)
	case "StartTransaction":
		return s.startTransaction(id, payload)
	case "StopTransaction":
		return s.stopTransaction(id)
	case "MeterValues":
		return s.meterValues(id, payload)
	default:
		return nil, fmt.Errorf("unsupported action %q", action)
	}
}

func (s *Server) statusNotification(id string, payload json.RawMessage) (any, error) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode StatusNotification: %w", err)
	}
	s.withCharger(id, func(c *charger) {
		c.status = chargerStatus(req.Status)
	})
	return map[string]any{}, nil
}

func (s *Server) startTransaction(id string, payload json.RawMessage) (any, error) {
	var req struct {
		MeterStart float64 `json:"meterStart"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode StartTransaction: %w", err)
	}
	var transactionID int
	s.withCharger(id, func(c *charger) {
		c.transactionID++
		c.inTransaction = true
		c.meterStartWh = req.MeterStart
		c.meterWh = req.MeterStart
		transactionID = c.transactionID
	})
	return map[string]any{
		"transactionId": transactionID,
		"idTagInfo":     map[string]any{"status": "Accepted"},
	}, nil
}

func (s *Server) stopTransaction(id string) (any, error) {
	s.withCharger(id, func(c *charger) {
		c.inTransaction = false
	})
	return map[string]any{"idTagInfo": map[string]any{"status": "Accepted"}}, nil
}

// meterValues extracts the energy register (Wh) from a MeterValues call.
func (s *Server) meterValues(id string, payload json.RawMessage) (any, error) {
	var req struct {
		MeterValue []struct {
			SampledValue []struct {
				Value     string `json:"value"`
				Measurand string `json:"measurand"`
			} `json:"sampledValue"`
		} `json:"meterValue"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode MeterValues: %w", err)
	}
	for _, mv := range req.MeterValue {
		for _, sv := range mv.SampledValue {
			if sv.Measurand != "" && sv.Measurand != "Energy.Active.Import.Register" {
				continue
			}
			value, err := strconv.ParseFloat(sv.Value, 64)
			if err != nil {
				continue
			}
			s.withCharger(id, func(c *charger) {
				c.meterWh = value
			})
		}
	}
	return map[string]any{}, nil
}

func (s *Server) setConnected(id string, connected bool) {
	s.withCharger(id, func(c *charger) {
		c.connected = connected
	})
}

func (s *Server) withCharger(id string, f func(*charger)) {
	s.lock.Lock()
	defer s.lock.Unlock()
	c, ok := s.chargers[id]
	if !ok {
		c = &charger{status: device.ChargerUnavailable}
		s.chargers[id] = c
	}
	f(c)
}

func chargerStatus(s string) device.ChargerStatus {
	switch s {
	case "Available":
		return device.ChargerAvailable
	case "Preparing":
		return device.ChargerPreparing
	case "Charging":
		return device.ChargerCharging
	case "SuspendedEV", "SuspendedEVSE":
		return device.ChargerSuspended
	case "Finishing":
		return device.ChargerFinishing
	case "Faulted":
		return device.ChargerFaulted
	default:
		return device.ChargerUnavailable
	}
}
