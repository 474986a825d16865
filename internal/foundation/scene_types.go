package foundation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrSceneTypeExists  = errors.New("foundation: scene type already exists")
	ErrInvalidSceneType = errors.New("foundation: invalid scene type")
	ErrSceneTypesSealed = errors.New("foundation: scene type registry is sealed")
)

// SceneType is the identity and display data for one scene node kind.
type SceneType struct {
	ID          string
	Name        string
	Description string
}

// SceneTypes stores scene node kinds by stable identifier. It is populated
// during provisioning and sealed by the app once bootstrap completes.
type SceneTypes struct {
	mu     sync.RWMutex
	items  map[string]SceneType
	sealed bool
}

func NewSceneTypes() *SceneTypes {
	return &SceneTypes{items: make(map[string]SceneType)}
}

// Scene type ids are sceneTypePrefix followed by a kind of at most maxKindLen bytes.
const (
	sceneTypePrefix = "node."
	maxKindLen      = 32
)

// ValidateSceneType requires a display name and an id of the form
// node.<kind>, where kind is a lowercase identifier. Description is optional.
func ValidateSceneType(st SceneType) error {
	if strings.TrimSpace(st.Name) == "" {
		return fmt.Errorf("%w: %q has no name", ErrInvalidSceneType, st.ID)
	}
	kind, ok := strings.CutPrefix(st.ID, sceneTypePrefix)
	if !ok || !isKind(kind) {
		return fmt.Errorf("%w: id %q is not %s<kind>", ErrInvalidSceneType, st.ID, sceneTypePrefix)
	}
	return nil
}

func (r *SceneTypes) Register(st SceneType) error {
	if err := ValidateSceneType(st); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrSceneTypesSealed
	}
	if _, ok := r.items[st.ID]; ok {
		return fmt.Errorf("%w: %s", ErrSceneTypeExists, st.ID)
	}
	r.items[st.ID] = st
	return nil
}

func (r *SceneTypes) Resolve(id string) (SceneType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.items[id]
	return st, ok
}

// List returns deterministic ordering by id.
func (r *SceneTypes) List() []SceneType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]SceneType, 0, len(r.items))
	for _, st := range r.items {
		list = append(list, st)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list
}

// Seal rejects further registration.
func (r *SceneTypes) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

var builtinSceneTypes = []SceneType{
	{ID: "node.terrain", Name: "Terrain", Description: "Static collision and visual ground"},
	{ID: "node.prop", Name: "Prop", Description: "Dynamic rigid body"},
	{ID: "node.light", Name: "Light", Description: "Point or directional light source"},
	{ID: "node.region", Name: "Region", Description: "Trigger volume"},
	{ID: "node.text", Name: "Text", Description: "World or screen space text"},
	{ID: "node.sound", Name: "Sound", Description: "Positional audio emitter"},
}

// RegisterBuiltins adds the engine's static scene node kinds.
func RegisterBuiltins(r *SceneTypes) error {
	for _, st := range builtinSceneTypes {
		if err := r.Register(st); err != nil {
			return err
		}
	}
	return nil
}

// isKind accepts a letter followed by lowercase letters, digits or
// underscores.
func isKind(kind string) bool {
	if kind == "" || len(kind) > maxKindLen {
		return false
	}
	for i, c := range kind {
		switch {
		case c >= 'a' && c <= 'z':
		case i > 0 && (c >= '0' && c <= '9' || c == '_'):
		default:
			return false
		}
	}
	return true
}
