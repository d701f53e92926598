// Package rulefile loads rule groups from YAML documents and applies them to
// a store.
//
// A file lists groups by name. Rules use the same shape the store accepts:
//
//	groups:
//	  - name: database
//	    priority: 120
//	    public_conditions: true
//	    rules:
//	      - user_groups: [1, 2]
//	        conditions:
//	          - {field: alert.name, method: eq, value: ["disk full"]}
//	        actions:
//	          - action_type: notice
//	            is_enabled: true
//	        is_enabled: true
//
// Applying a file replaces the whole rule list of each named group. Groups
// not named in the file are left alone.
package rulefile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/solatis/dispatchkeeper/internal/dispatch"
	"github.com/solatis/dispatchkeeper/internal/rules"
	"github.com/solatis/dispatchkeeper/internal/types"
)

// File is a parsed rule file.
type File struct {
	Groups []GroupSpec `yaml:"groups"`
}

// GroupSpec describes one group and its complete rule list.
// Priority 0 keeps the stored priority, or picks the next free one for a
// new group.
type GroupSpec struct {
	Name             string             `yaml:"name"`
	Priority         int                `yaml:"priority"`
	EditAllowed      *bool              `yaml:"edit_allowed"`
	PublicConditions bool               `yaml:"public_conditions"`
	Rules            []types.RuleParams `yaml:"rules"`
}

// Load reads and parses path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("rule file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a YAML document and validates it. Unknown keys are errors.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse rule file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks names and priorities across groups, then runs every rule
// through the editor's validation. All problems are reported together.
func (f *File) Validate() error {
	if len(f.Groups) == 0 {
		return errors.New("rule file defines no groups")
	}

	var errs []error
	names := make(map[string]bool, len(f.Groups))
	priorities := make(map[int]string, len(f.Groups))

	for i, gs := range f.Groups {
		name := strings.TrimSpace(gs.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("group %d: %w", i, types.ErrEmptyGroupName))
			continue
		}
		if names[name] {
			errs = append(errs, fmt.Errorf("group %q: defined twice", name))
		}
		names[name] = true

		if gs.Priority != 0 {
			if gs.Priority < types.MinPriority || gs.Priority > types.MaxPriority {
				errs = append(errs, fmt.Errorf("group %q: %w: %d", name, types.ErrInvalidPriority, gs.Priority))
			} else if other, ok := priorities[gs.Priority]; ok {
				errs = append(errs, fmt.Errorf("group %q: %w: %d (also %q)", name, types.ErrPriorityConflict, gs.Priority, other))
			} else {
				priorities[gs.Priority] = name
			}
		}

		g := gs.group(types.GroupInfo{Name: name, Priority: gs.Priority})
		for j, r := range g.Rules {
			for _, fe := range r.Errors {
				errs = append(errs, fmt.Errorf("group %q rule %d: %s", name, j, fe.Error()))
			}
		}
		if err := rules.ValidateRules(g.SubmitRules()); err != nil {
			errs = append(errs, fmt.Errorf("group %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// group builds the editable group described by gs on top of info. Stored rule ids
// in the file are ignored.
func (gs GroupSpec) group(info types.GroupInfo) *dispatch.Group {
	info.Settings.PublicConditions = gs.PublicConditions
	if gs.EditAllowed != nil {
		info.EditAllowed = *gs.EditAllowed
	}
	params := make([]types.RuleParams, len(gs.Rules))
	for i, p := range gs.Rules {
		p.ID = 0
		params[i] = p
	}
	g := dispatch.NewGroup(info)
	g.LoadRules(params)
	return g
}

// Store is the subset of the group store Apply writes to.
type Store interface {
	ListGroups(ctx context.Context) ([]types.GroupInfo, error)
	CreateGroup(ctx context.Context, info types.GroupInfo) (types.GroupInfo, error)
	UpdateGroup(ctx context.Context, info types.GroupInfo) (types.GroupInfo, error)
	SaveRules(ctx context.Context, groupID int64, batch []types.RuleParams, user string) ([]types.RuleParams, error)
}

// Applied reports what Apply did for one group.
type Applied struct {
	GroupID  int64
	Name     string
	Priority int
	Created  bool
	Rules    int
}

// Apply creates or updates every group of f, matched by name, and replaces
// its rules. It stops at the first store error; groups applied before it
// stay applied.
func Apply(ctx context.Context, st Store, f *File, user string) ([]Applied, error) {
	existing, err := st.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	byName := make(map[string]types.GroupInfo, len(existing))
	for _, info := range existing {
		byName[info.Name] = info
	}

	out := make([]Applied, 0, len(f.Groups))
	for _, gs := range f.Groups {
		name := strings.TrimSpace(gs.Name)
		info, found := byName[name]
		if !found {
			info = types.GroupInfo{Name: name, EditAllowed: true}
		}
		info.UpdateUser = user
		if gs.Priority != 0 {
			info.Priority = gs.Priority
		} else if !found {
			next, ok := dispatch.NextPriority(existing)
			if !ok {
				return out, fmt.Errorf("group %q: %w: no free priority", name, types.ErrInvalidPriority)
			}
			info.Priority = next
		}

		g := gs.group(info)
		info = g.Info()
		info.Settings.PublicConditions = gs.PublicConditions

		if found {
			info, err = st.UpdateGroup(ctx, info)
		} else {
			info, err = st.CreateGroup(ctx, info)
		}
		if err != nil {
			return out, fmt.Errorf("group %q: %w", name, err)
		}
		existing = append(existing, info)

		saved, err := st.SaveRules(ctx, info.ID, g.SubmitRules(), user)
		if err != nil {
			return out, fmt.Errorf("group %q rules: %w", name, err)
		}
		out = append(out, Applied{GroupID: info.ID, Name: name, Priority: info.Priority, Created: !found, Rules: len(saved)})
	}
	return out, nil
}
