package device

import (
	"fmt"
	"testing"
	"time"
)

// setupBenchRegistry creates a registry pre-populated with n devices.
func setupBenchRegistry(b *testing.B, n int) *Registry {
	b.Helper()
	reg := NewRegistry(ModeOpen, nil)
	now := time.Now()
	for i := 0; i < n; i++ {
		if _, err := reg.Upsert(fmt.Sprintf("dev-%04d", i), Reading{LastSeen: now}); err != nil {
			b.Fatalf("seeding device %d: %v", i, err)
		}
	}
	return reg
}

func BenchmarkRegistryUpsert(b *testing.B) {
	reg := setupBenchRegistry(b, 100)
	reading := Reading{
		Sensors:  &SensorInput{Temperature: 24.0, Humidity: 55.0, SoilMoisture: 31.0, LightLevel: 820.0},
		LastSeen: time.Now(),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.Upsert("dev-0050", reading) //nolint:errcheck // benchmark
	}
}

func BenchmarkRegistryUpsert_Parallel(b *testing.B) {
	reg := setupBenchRegistry(b, 100)
	reading := Reading{LastSeen: time.Now()}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			reg.Upsert(fmt.Sprintf("dev-%04d", i%100), reading) //nolint:errcheck // benchmark
			i++
		}
	})
}

func BenchmarkRegistryList(b *testing.B) {
	reg := setupBenchRegistry(b, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = reg.List()
	}
}
