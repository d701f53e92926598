package rulefile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/dispatchkeeper/internal/core/db"
	"github.com/solatis/dispatchkeeper/internal/core/events"
	"github.com/solatis/dispatchkeeper/internal/core/store"
	"github.com/solatis/dispatchkeeper/internal/types"
)

const sampleFile = `
groups:
  - name: database
    priority: 120
    public_conditions: true
    rules:
      - user_groups: [1, 2]
        conditions:
          - {field: alert.name, method: eq, value: ["disk full"]}
          - {field: tags.env, method: regex, value: ["^prod"], condition: or}
        actions:
          - action_type: notice
            is_enabled: true
            upgrade_config: {is_enabled: true, user_groups: [3], upgrade_interval: 60}
          - action_type: itsm
            action_id: 9
        alert_severity: 1
        additional_tags: [{key: team, value: dba}]
        is_enabled: true
  - name: network
    rules:
      - user_groups: [4]
        conditions:
          - {field: alert.name, method: include, value: [link]}
        is_enabled: true
`

func newStore(t *testing.T) *store.Store {
	t.Helper()
	database, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "rules.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.MigrateUp(context.Background(), database))

	q, err := db.LoadQueries(database)
	require.NoError(t, err)
	return store.New(q, events.NopPublisher{}, nil)
}

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sampleFile))
	require.NoError(t, err)
	require.Len(t, f.Groups, 2)

	g := f.Groups[0]
	assert.Equal(t, "database", g.Name)
	assert.Equal(t, 120, g.Priority)
	assert.True(t, g.PublicConditions)
	require.Len(t, g.Rules, 1)
	assert.Equal(t, types.Operator("regex"), g.Rules[0].Conditions[1].Operator)
	assert.Equal(t, int64(9), g.Rules[0].Action(types.ActionITSM).ActionID)

	assert.Equal(t, 0, f.Groups[1].Priority)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("groups:\n  - name: a\n    prio: 5\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prio")
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse([]byte("groups: []\n"))
	require.Error(t, err)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	doc := `
groups:
  - name: a
    priority: 50
    rules:
      - conditions: [{field: alert.name, method: eq, value: [x]}]
        is_enabled: true
  - name: a
    priority: 50
  - name: b
    priority: 20000
    rules:
      - user_groups: [1]
        conditions: [{field: alert.name, method: reg, value: ["("]}]
        is_enabled: true
  - name: ""
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, `group "a" rule 0: userGroups: alarmGroupsRequired`)
	assert.Contains(t, msg, `group "a": defined twice`)
	assert.Contains(t, msg, types.ErrPriorityConflict.Error())
	assert.Contains(t, msg, types.ErrInvalidPriority.Error())
	assert.Contains(t, msg, `group "b" rule 0: conditions: conditionRegex`)
	assert.Contains(t, msg, "group 3: "+types.ErrEmptyGroupName.Error())
}

func TestValidate_RejectsTagValueWithSeparator(t *testing.T) {
	doc := `
groups:
  - name: a
    priority: 50
    rules:
      - user_groups: [1]
        conditions: [{field: alert.name, method: eq, value: [x]}]
        additional_tags: [{key: runbook, value: "http://wiki/cpu"}]
        is_enabled: true
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidTag)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Groups, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	f, err := Parse([]byte(sampleFile))
	require.NoError(t, err)

	applied, err := Apply(ctx, st, f, "alice")
	require.NoError(t, err)
	require.Len(t, applied, 2)

	assert.True(t, applied[0].Created)
	assert.Equal(t, 120, applied[0].Priority)
	assert.Equal(t, 1, applied[0].Rules)
	assert.Equal(t, 125, applied[1].Priority, "next step after 120")

	stored, err := st.ListRules(ctx, applied[0].GroupID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, types.OpReg, stored[0].Conditions[1].Operator)
	assert.Equal(t, types.ConnOr, stored[0].Conditions[1].Connector)

	info, err := st.GetGroup(ctx, applied[0].GroupID)
	require.NoError(t, err)
	assert.True(t, info.Settings.PublicConditions)
	assert.Equal(t, "alice", info.UpdateUser)

	// Applying again updates in place and replaces the rule list.
	f.Groups[1].Rules = append(f.Groups[1].Rules, f.Groups[1].Rules[0])
	f.Groups[1].Rules[1].UserGroups = []int64{5}
	again, err := Apply(ctx, st, f, "bob")
	require.NoError(t, err)

	assert.False(t, again[1].Created)
	assert.Equal(t, applied[1].GroupID, again[1].GroupID)
	assert.Equal(t, 125, again[1].Priority, "stored priority kept")
	assert.Equal(t, 2, again[1].Rules)

	groups, err := st.ListGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 2)
}
