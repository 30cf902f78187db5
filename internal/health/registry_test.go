package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_OptimisticDefault(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.IsHealthy("a:8080"), "unknown endpoint should be healthy by default")

	healthy := r.FilterHealthy([]string{"a:8080", "b:8080"})
	assert.Equal(t, []string{"a:8080", "b:8080"}, healthy)

	_, exists := r.Record("a:8080")
	assert.False(t, exists, "IsHealthy must not create a record")
}

func TestRegistry_UnhealthyAfterThreshold(t *testing.T) {
	r := NewRegistry()

	// Failures 1 and 2 leave the endpoint usable.
	r.RecordResult("a:8080", false)
	assert.True(t, r.IsHealthy("a:8080"))

	r.RecordResult("a:8080", false)
	assert.True(t, r.IsHealthy("a:8080"))

	rec, exists := r.Record("a:8080")
	require.True(t, exists)
	assert.Equal(t, 2, rec.ConsecutiveFailures)
	assert.NotNil(t, rec.LastFailureAt)

	// Third consecutive failure flips the flag.
	r.RecordResult("a:8080", false)
	assert.False(t, r.IsHealthy("a:8080"))

	healthy := r.FilterHealthy([]string{"a:8080", "b:8080"})
	assert.Equal(t, []string{"b:8080"}, healthy)
}

func TestRegistry_RecoveryOnSingleSuccess(t *testing.T) {
	r := NewRegistry()

	for i := 0; i < 3; i++ {
		r.RecordResult("a:8080", false)
	}
	require.False(t, r.IsHealthy("a:8080"))

	// One success is enough to recover.
	r.RecordResult("a:8080", true)
	assert.True(t, r.IsHealthy("a:8080"))

	rec, _ := r.Record("a:8080")
	assert.Equal(t, 0, rec.ConsecutiveFailures)
}

func TestRegistry_SuccessResetsFailureCounter(t *testing.T) {
	r := NewRegistry()

	r.RecordResult("a:8080", false)
	r.RecordResult("a:8080", false)
	r.RecordResult("a:8080", true)
	r.RecordResult("a:8080", false)
	r.RecordResult("a:8080", false)

	// Counter was reset by the success, so two more failures do not
	// cross the threshold.
	assert.True(t, r.IsHealthy("a:8080"))

	rec, _ := r.Record("a:8080")
	assert.Equal(t, 2, rec.ConsecutiveFailures)
}

func TestRegistry_CustomThreshold(t *testing.T) {
	r := NewRegistry(WithFailureThreshold(1))

	r.RecordResult("a:8080", false)
	assert.False(t, r.IsHealthy("a:8080"))
}

func TestRegistry_SetOverride(t *testing.T) {
	r := NewRegistry()

	r.SetOverride("a:8080", false)
	assert.False(t, r.IsHealthy("a:8080"))

	// Override back to healthy resets the counter.
	r.RecordResult("a:8080", false)
	r.SetOverride("a:8080", true)
	assert.True(t, r.IsHealthy("a:8080"))

	rec, _ := r.Record("a:8080")
	assert.Equal(t, 0, rec.ConsecutiveFailures)
}

func TestRegistry_Records(t *testing.T) {
	r := NewRegistry()

	r.RecordResult("a:8080", true)
	r.RecordResult("b:8080", false)

	records := r.Records()
	assert.Len(t, records, 2)
}

func TestRegistry_FilterHealthyPreservesOrder(t *testing.T) {
	r := NewRegistry()

	for i := 0; i < 3; i++ {
		r.RecordResult("b:8080", false)
	}

	healthy := r.FilterHealthy([]string{"a:8080", "b:8080", "c:8080"})
	assert.Equal(t, []string{"a:8080", "c:8080"}, healthy)
}
