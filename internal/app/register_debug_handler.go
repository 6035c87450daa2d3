// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/relabs-tech/field_computer/internal/config"
	"github.com/relabs-tech/field_computer/internal/sensors"
)

// RegisterDebugSession holds WebSocket connection state for register debugging
type RegisterDebugSession struct {
	Conn *websocket.Conn
}

// WebSocket message types for register debugging
type RegisterReadCmd struct {
	Action  string `json:"action"` // "read", "read_all"
	Address string `json:"addr,omitempty"`
}

type RegisterWriteCmd struct {
	Action  string `json:"action"` // "write"
	Address string `json:"addr"`
	Value   string `json:"value"`
}

type RegisterInitCmd struct {
	Action string `json:"action"` // "init"
}

type RegisterBusSpeedCmd struct {
	Action string `json:"action"` // "set_bus_speed"
	Speed  int64  `json:"speed"`
}

type RegisterExportCmd struct {
	Action string `json:"action"` // "export_config"
}

// Response types
type RegisterResponse struct {
	Type        string            `json:"type"` // "register_data", "register_map", "status", "error"
	Device      string            `json:"device,omitempty"`
	Address     string            `json:"addr,omitempty"`
	Value       string            `json:"value,omitempty"`
	Registers   map[string]string `json:"registers,omitempty"` // for bulk read
	Timestamp   string            `json:"timestamp,omitempty"`
	Message     string            `json:"message,omitempty"`
	Status      string            `json:"status,omitempty"`
	BusSpeed    int64             `json:"bus_speed,omitempty"`
	RegisterMap []RegisterInfo    `json:"register_map,omitempty"`
}

type RegisterInfo struct {
	Address     string             `json:"address"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Access      string             `json:"access"` // "R", "W", "RW"
	Default     string             `json:"default,omitempty"`
	BitFields   []sensors.BitField `json:"bit_fields,omitempty"`
}

// RegisterConfigFile represents the JSON structure for exported register configuration
type RegisterConfigFile struct {
	Version   int               `json:"version"`
	Sensor    string            `json:"sensor"`
	Timestamp string            `json:"timestamp"`
	Registers map[string]string `json:"registers"` // hex address -> hex value
}

// HandleRegisterDebugWS handles the WebSocket connection for register debugging
func HandleRegisterDebugWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("register_debug: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	session := &RegisterDebugSession{Conn: conn}

	// Send register map on connection
	if err := session.sendRegisterMap(); err != nil {
		log.Printf("register_debug: error sending register map: %v", err)
		return
	}

	// Message loop
	for {
		var rawMsg map[string]interface{}
		err := conn.ReadJSON(&rawMsg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("register_debug: websocket error: %v", err)
			}
			break
		}

		action, ok := rawMsg["action"].(string)
		if !ok {
			session.sendError("missing or invalid action field")
			continue
		}

		// Route based on action
		switch action {
		case "get_map":
			session.sendRegisterMap()
		case "read":
			session.handleRead(rawMsg)
		case "read_all":
			session.handleReadAll(rawMsg)
		case "write":
			session.handleWrite(rawMsg)
		case "init":
			session.handleInit(rawMsg)
		case "set_bus_speed":
			session.handleSetBusSpeed(rawMsg)
		case "export_config":
			session.handleExportConfig(rawMsg)
		default:
			session.sendError(fmt.Sprintf("unknown action: %s", action))
		}
	}
}

func (s *RegisterDebugSession) handleRead(rawMsg map[string]interface{}) {
	addr, _ := rawMsg["addr"].(string)
	if addr == "" {
		s.sendError("missing addr field")
		return
	}

	// Parse hex address
	var addrByte byte
	if _, err := fmt.Sscanf(addr, "0x%X", &addrByte); err != nil {
		s.sendError(fmt.Sprintf("invalid address format: %s", addr))
		return
	}

	mgr := sensors.GetMagManager()
	value, err := mgr.ReadRegister(addrByte)
	if err != nil {
		s.sendError(fmt.Sprintf("read error: %v", err))
		return
	}

	// Send response
	resp := RegisterResponse{
		Type:      "register_data",
		Device:    "lis3mdl",
		Address:   addr,
		Value:     fmt.Sprintf("0x%02X", value),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	s.Conn.WriteJSON(resp)
}

func (s *RegisterDebugSession) handleReadAll(rawMsg map[string]interface{}) {
	mgr := sensors.GetMagManager()
	registers, err := mgr.ReadAllRegisters()
	if err != nil {
		s.sendError(fmt.Sprintf("read all error: %v", err))
		return
	}

	// Convert to hex string map
	regMap := make(map[string]string)
	for addr, value := range registers {
		regMap[fmt.Sprintf("0x%02X", addr)] = fmt.Sprintf("0x%02X", value)
	}

	// Send response
	resp := RegisterResponse{
		Type:      "register_data",
		Device:    "lis3mdl",
		Registers: regMap,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	s.Conn.WriteJSON(resp)
}

func (s *RegisterDebugSession) handleWrite(rawMsg map[string]interface{}) {
	addr, _ := rawMsg["addr"].(string)
	valueStr, _ := rawMsg["value"].(string)

	if addr == "" || valueStr == "" {
		s.sendError("missing addr or value field")
		return
	}

	// Parse hex address and value
	var addrByte, valueByte byte
	if _, err := fmt.Sscanf(addr, "0x%X", &addrByte); err != nil {
		s.sendError(fmt.Sprintf("invalid address format: %s", addr))
		return
	}
	if _, err := fmt.Sscanf(valueStr, "0x%X", &valueByte); err != nil {
		s.sendError(fmt.Sprintf("invalid value format: %s", valueStr))
		return
	}

	// Validate write range
	cfg := config.Get()
	if !isRegisterWritable(addrByte, cfg.RegisterDebugAllowedRanges) {
		s.sendError(fmt.Sprintf("register 0x%02X not in allowed write ranges", addrByte))
		return
	}

	mgr := sensors.GetMagManager()
	if err := mgr.WriteRegister(addrByte, valueByte); err != nil {
		s.sendError(fmt.Sprintf("write error: %v", err))
		return
	}

	// Send confirmation
	resp := RegisterResponse{
		Type:      "register_data",
		Device:    "lis3mdl",
		Address:   addr,
		Value:     valueStr,
		Timestamp: time.Now().Format(time.RFC3339),
		Message:   "write successful",
	}
	s.Conn.WriteJSON(resp)
}

func (s *RegisterDebugSession) handleInit(rawMsg map[string]interface{}) {
	mgr := sensors.GetMagManager()
	if err := mgr.Reinitialize(); err != nil {
		s.sendError(fmt.Sprintf("reinit error: %v", err))
		return
	}

	// Send status response
	resp := RegisterResponse{
		Type:     "status",
		Device:   "lis3mdl",
		Status:   "initialized",
		BusSpeed: mgr.BusSpeed(),
		Message:  "sensor reinitialized successfully",
	}
	s.Conn.WriteJSON(resp)
}

func (s *RegisterDebugSession) handleSetBusSpeed(rawMsg map[string]interface{}) {
	speed, ok := rawMsg["speed"].(float64)
	if !ok {
		s.sendError("missing or invalid speed field")
		return
	}

	cfg := config.Get()

	// Validate and clamp the speed
	speedInt := int64(speed)
	if cfg.RegisterDebugMinBusSpeed > 0 && speedInt < cfg.RegisterDebugMinBusSpeed {
		speedInt = cfg.RegisterDebugMinBusSpeed
	}
	if cfg.RegisterDebugMaxBusSpeed > 0 && speedInt > cfg.RegisterDebugMaxBusSpeed {
		speedInt = cfg.RegisterDebugMaxBusSpeed
	}

	mgr := sensors.GetMagManager()
	if err := mgr.SetBusSpeed(speedInt); err != nil {
		s.sendError(fmt.Sprintf("set bus speed error: %v", err))
		return
	}

	// Send confirmation
	resp := RegisterResponse{
		Type:     "status",
		Device:   "lis3mdl",
		BusSpeed: speedInt,
		Message:  "bus speed updated",
	}
	s.Conn.WriteJSON(resp)
}

func (s *RegisterDebugSession) handleExportConfig(rawMsg map[string]interface{}) {
	// Read the writable registers
	mgr := sensors.GetMagManager()
	registers, err := mgr.ExportRegisterConfig()
	if err != nil {
		s.sendError(fmt.Sprintf("export error: %v", err))
		return
	}

	// Convert to hex string map
	regMap := make(map[string]string)
	for addr, value := range registers {
		regMap[fmt.Sprintf("0x%02X", addr)] = fmt.Sprintf("0x%02X", value)
	}

	// Create config file structure
	configFile := RegisterConfigFile{
		Version:   1,
		Sensor:    "lis3mdl",
		Timestamp: time.Now().Format(time.RFC3339),
		Registers: regMap,
	}

	// Send as download
	configJSON, _ := json.Marshal(configFile)
	rawResp := map[string]interface{}{
		"type":     "export_config",
		"sensor":   "lis3mdl",
		"message":  "config exported",
		"config":   string(configJSON),
		"filename": fmt.Sprintf("lis3mdl_%s_registers.json", time.Now().Format("20060102_150405")),
	}
	s.Conn.WriteJSON(rawResp)
}

func (s *RegisterDebugSession) sendRegisterMap() error {
	mgr := sensors.GetMagManager()
	regMap := mgr.GetRegisterMap()

	// Convert sensors.RegisterInfo to RegisterInfo
	mappedRegs := make([]RegisterInfo, len(regMap))
	for i, r := range regMap {
		mappedRegs[i] = RegisterInfo{
			Address:     r.Address,
			Name:        r.Name,
			Description: r.Description,
			Access:      r.Access,
			Default:     r.Default,
			BitFields:   r.BitFields, // Already sensors.BitField type
		}
	}

	resp := RegisterResponse{
		Type:        "register_map",
		Device:      "lis3mdl",
		RegisterMap: mappedRegs,
	}
	return s.Conn.WriteJSON(resp)
}

func (s *RegisterDebugSession) sendError(message string) {
	resp := RegisterResponse{
		Type:    "error",
		Message: message,
	}
	s.Conn.WriteJSON(resp)
}

// HandleFieldData serves the latest magnetometer reading via REST API
func HandleFieldData(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	mgr := sensors.GetMagManager()
	sample, err := mgr.ReadSample()
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error": "%v"}`, err), http.StatusInternalServerError)
		return
	}
	sample.Source = "lis3mdl"
	sample.Norm = sample.FieldNorm()
	sample.Time = time.Now().Format(time.RFC3339)

	json.NewEncoder(w).Encode(sample)
}

// isRegisterWritable checks if a register address is in the allowed write
// ranges. Ranges look like "0x20-0x23,0x30", single addresses or dashed
// spans separated by commas. An empty string allows no writes.
func isRegisterWritable(addr byte, allowedRanges string) bool {
	for _, part := range strings.Split(allowedRanges, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lowStr, highStr, isRange := strings.Cut(part, "-")
		low, err := strconv.ParseUint(strings.TrimSpace(lowStr), 0, 8)
		if err != nil {
			continue
		}
		high := low
		if isRange {
			high, err = strconv.ParseUint(strings.TrimSpace(highStr), 0, 8)
			if err != nil {
				continue
			}
		}
		if uint64(addr) >= low && uint64(addr) <= high {
			return true
		}
	}
	return false
}
