// Package operators resolves the registered webhook endpoint of each
// counterpart service by chain and address.
package operators

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goliatone/go-escrow-pipeline/core"
	"gopkg.in/yaml.v3"
)

// Entry is one operator row in the directory file.
type Entry struct {
	ChainID    int64  `yaml:"chain_id"`
	Address    string `yaml:"address"`
	Role       string `yaml:"role"`
	WebhookURL string `yaml:"webhook_url"`
}

type directoryFile struct {
	Operators []Entry `yaml:"operators"`
}

// StaticDirectory is an in memory directory seeded from configuration.
type StaticDirectory struct {
	mu        sync.RWMutex
	operators map[string]core.Operator
}

func NewStaticDirectory(entries ...Entry) (*StaticDirectory, error) {
	directory := &StaticDirectory{operators: map[string]core.Operator{}}
	for _, entry := range entries {
		if err := directory.Put(entry); err != nil {
			return nil, err
		}
	}
	return directory, nil
}

// LoadStaticDirectory reads a YAML file with a top level operators list.
func LoadStaticDirectory(path string) (*StaticDirectory, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("operators: read %s: %w", path, err)
	}
	var file directoryFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("operators: parse %s: %w", path, err)
	}
	return NewStaticDirectory(file.Operators...)
}

func (d *StaticDirectory) Put(entry Entry) error {
	if d == nil {
		return fmt.Errorf("operators: directory is nil")
	}
	if entry.ChainID <= 0 {
		return fmt.Errorf("operators: chain_id must be > 0")
	}
	address := core.NormalizeAddress(entry.Address)
	if !common.IsHexAddress(address) {
		return fmt.Errorf("operators: invalid address %q", entry.Address)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.operators[operatorKey(entry.ChainID, address)] = core.Operator{
		ChainID:    entry.ChainID,
		Address:    address,
		Role:       core.OperatorRole(strings.ToLower(strings.TrimSpace(entry.Role))),
		WebhookURL: strings.TrimSpace(entry.WebhookURL),
	}
	return nil
}

// GetOperator reports an unknown operator as missing data so the caller
// retries once the operator registers.
func (d *StaticDirectory) GetOperator(_ context.Context, chainID int64, address string) (core.Operator, error) {
	if d == nil {
		return core.Operator{}, fmt.Errorf("operators: directory is nil")
	}
	address = core.NormalizeAddress(address)
	d.mu.RLock()
	operator, ok := d.operators[operatorKey(chainID, address)]
	d.mu.RUnlock()
	if !ok {
		return core.Operator{}, core.MissingDataError("operators: operator is not registered", map[string]any{
			"chain_id": chainID,
			"address":  address,
		})
	}
	return operator, nil
}

func operatorKey(chainID int64, address string) string {
	return fmt.Sprintf("%d:%s", chainID, address)
}

var _ core.OperatorDirectory = (*StaticDirectory)(nil)
