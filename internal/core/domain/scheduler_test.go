package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSchedulerConfig(t *testing.T) {
	config := DefaultSchedulerConfig()

	assert.True(t, config.Enabled)
	assert.Equal(t, time.Minute, config.Tick)
	assert.Len(t, config.TaskConfigs, 2)

	updateCfg := config.TaskConfigs[TaskIDIndexUpdate]
	assert.True(t, updateCfg.Enabled)
	assert.Equal(t, time.Hour, updateCfg.Interval)

	pruneCfg := config.TaskConfigs[TaskIDAuditPrune]
	assert.True(t, pruneCfg.Enabled)
	assert.Equal(t, 24*time.Hour, pruneCfg.Interval)
}

func TestSchedulerConfig_GetTaskConfig(t *testing.T) {
	config := DefaultSchedulerConfig()

	updateCfg := config.GetTaskConfig(TaskIDIndexUpdate)
	assert.True(t, updateCfg.Enabled)

	// Non-existent task
	unknownCfg := config.GetTaskConfig("unknown-task")
	assert.False(t, unknownCfg.Enabled)
	assert.Equal(t, time.Duration(0), unknownCfg.Interval)
}

func TestSchedulerConfig_GetTaskConfig_NilMap(t *testing.T) {
	config := SchedulerConfig{
		Enabled:     true,
		TaskConfigs: nil,
	}

	cfg := config.GetTaskConfig("any-task")
	assert.False(t, cfg.Enabled)
	assert.Equal(t, time.Duration(0), cfg.Interval)
}

func TestTaskConstants(t *testing.T) {
	assert.Equal(t, "index-update", TaskIDIndexUpdate)
	assert.Equal(t, "audit-prune", TaskIDAuditPrune)
}
