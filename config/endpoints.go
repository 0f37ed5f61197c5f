package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// EndpointPdu declares one PDU a domain-stack endpoint (Memory or
// TCP) knows about: its owning robot, name, and fixed wire size.
type EndpointPdu struct {
	RobotName string `json:"robot_name"`
	PduName   string `json:"pdu_name"`
	Size      int    `json:"size"`
}

// EndpointDef is one entry of an endpoints config file, the document
// named by BridgeConfig.EndpointsConfigPath.
type EndpointDef struct {
	ID         string        `json:"id"`
	Mode       string        `json:"mode"` // "memory" or "tcp"
	ListenAddr string        `json:"listen_addr,omitempty"`
	DialAddr   string        `json:"dial_addr,omitempty"`
	Pdus       []EndpointPdu `json:"pdus"`
}

// EndpointsFile is the root document of an endpoints config file.
type EndpointsFile struct {
	Endpoints []EndpointDef `json:"endpoints"`
}

// ParseEndpoints decodes raw JSON bytes into an EndpointsFile.
func ParseEndpoints(data []byte) (*EndpointsFile, error) {
	var f EndpointsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: malformed endpoints document: %w", err)
	}
	return &f, nil
}

// LoadEndpoints reads path and parses it as an EndpointsFile.
func LoadEndpoints(path string) (*EndpointsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return ParseEndpoints(data)
}
