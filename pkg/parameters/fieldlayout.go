package parameters

import (
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// FieldConstraints mirrors the numeric/enum constraints setup_fields.py
// enforces per field.
type FieldConstraints struct {
	Minimum *float64 `yaml:"minimum,omitempty"`
	Maximum *float64 `yaml:"maximum,omitempty"`
	Options []string `yaml:"options,omitempty"`
}

// FieldDefinition is one leaf in the setup field layout.
type FieldDefinition struct {
	FieldID          string           `yaml:"field_id"`
	Label            string           `yaml:"label"`
	Required         bool             `yaml:"required"`
	ValueType        string           `yaml:"value_type"`
	Unit             string           `yaml:"unit,omitempty"`
	Path             string           `yaml:"path"`
	RequiresSelector bool             `yaml:"requires_selector,omitempty"`
	Advanced         bool             `yaml:"advanced,omitempty"`
	Constraints      FieldConstraints `yaml:"constraints,omitempty"`
}

// FieldCategory groups fields under a setup category (pv_plane,
// electric_vehicle, home_appliance, ...).
type FieldCategory struct {
	CategoryID  string            `yaml:"category_id"`
	Title       string            `yaml:"title"`
	Repeatable  bool              `yaml:"repeatable,omitempty"`
	Fields      []FieldDefinition `yaml:"fields"`
}

// FieldLayout is the static category → field catalog, hot-reloadable from
// a YAML file the way the teacher's config layer hot-reloads via
// fsnotify.
type FieldLayout struct {
	mu         sync.RWMutex
	categories []FieldCategory
	byFieldID  map[string]FieldDefinition
	logger     *zap.Logger
	watcher    *fsnotify.Watcher
}

// NewFieldLayout loads path once and, if watch is true, starts an
// fsnotify watcher that reloads it on every write.
func NewFieldLayout(path string, watch bool, logger *zap.Logger) (*FieldLayout, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fl := &FieldLayout{logger: logger.With(zap.String("component", "field_layout"))}
	if err := fl.reload(path); err != nil {
		return nil, err
	}
	if watch {
		if err := fl.watch(path); err != nil {
			return nil, err
		}
	}
	return fl, nil
}

// NewFieldLayoutFromCategories builds a FieldLayout directly from an
// in-memory catalog, without a backing file or watcher. Used by tests
// and by callers that assemble the catalog programmatically.
func NewFieldLayoutFromCategories(categories []FieldCategory) *FieldLayout {
	byFieldID := make(map[string]FieldDefinition)
	for _, cat := range categories {
		for _, field := range cat.Fields {
			byFieldID[field.FieldID] = field
		}
	}
	return &FieldLayout{categories: categories, byFieldID: byFieldID, logger: zap.NewNop()}
}

func (fl *FieldLayout) reload(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var categories []FieldCategory
	if err := yaml.Unmarshal(raw, &categories); err != nil {
		return err
	}
	byFieldID := make(map[string]FieldDefinition)
	for _, cat := range categories {
		for _, field := range cat.Fields {
			byFieldID[field.FieldID] = field
		}
	}
	fl.mu.Lock()
	fl.categories = categories
	fl.byFieldID = byFieldID
	fl.mu.Unlock()
	return nil
}

func (fl *FieldLayout) watch(path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}
	fl.watcher = watcher
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := fl.reload(path); err != nil {
						fl.logger.Warn("reload field layout failed", zap.Error(err))
					} else {
						fl.logger.Info("field layout reloaded")
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				fl.logger.Warn("field layout watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

// Close stops the fsnotify watcher, if one is running.
func (fl *FieldLayout) Close() error {
	if fl.watcher == nil {
		return nil
	}
	return fl.watcher.Close()
}

// Categories returns the current layout snapshot.
func (fl *FieldLayout) Categories() []FieldCategory {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return fl.categories
}

// FieldByID looks up a single field definition.
func (fl *FieldLayout) FieldByID(fieldID string) (FieldDefinition, bool) {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	d, ok := fl.byFieldID[fieldID]
	return d, ok
}
