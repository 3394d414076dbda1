package vault

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/mrwolf/moodtrack/internal/rules"
)

// Vault handles all file output: the compiled rule table, the prediction
// journal and weekly reports.
type Vault struct {
	basePath    string
	journalLock sync.Mutex // serializes prediction journal appends
}

// NewVault creates a new Vault instance
func NewVault(basePath string) *Vault {
	return &Vault{basePath: basePath}
}

// BasePath returns the vault base path
func (v *Vault) BasePath() string {
	return v.basePath
}

// RulesPath is where the compiled rule table lives by default
func (v *Vault) RulesPath() string {
	return filepath.Join(v.basePath, "Rules", "compiled.json")
}

// WriteRuleTable writes t as indented JSON to path, or to RulesPath when
// path is empty. Returns the path written.
func (v *Vault) WriteRuleTable(path string, t *rules.Table) (string, error) {
	if path == "" {
		path = v.RulesPath()
	}
	return path, WriteRuleTable(path, t)
}

// WriteRuleTable writes t as indented JSON to path atomically
func WriteRuleTable(path string, t *rules.Table) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling rule table: %w", err)
	}
	if err := WriteFileAtomic(path, append(data, '\n')); err != nil {
		return fmt.Errorf("writing rule table: %w", err)
	}
	return nil
}
