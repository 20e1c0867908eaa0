package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/mrjvadi/go-device-rpc/transport/memory"
)

func newBenchPair(b *testing.B, options ...Option) *Client {
	b.Helper()
	hub := memory.NewHub()

	r, err := NewResponder(hub, "mem://bench", testUser, testDevice, WithMaxJobs(64))
	if err != nil {
		b.Fatal(err)
	}
	r.OnRequest("getSensors", func(*Context) (any, error) {
		return map[string]float64{"temperature": 21.5}, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = r.Run(ctx)
	}()
	<-r.Ready()

	c, err := Dial(hub, "mem://bench", testUser, testDevice, append(options, WithAutoSubscribe())...)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() {
		c.Disconnect(true)
		cancel()
		<-stopped
	})

	// Warm up until the response subscription is in place.
	deadline := time.Now().Add(5 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_, err := c.Call(ctx, "getSensors", nil)
		cancel()
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			b.Fatalf("warmup rpc failed: %v", err)
		}
	}
	return c
}

func BenchmarkCall(b *testing.B) {
	c := newBenchPair(b)
	ctx := context.Background()
	b.ReportAllocs()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Call(ctx, "getSensors", nil); err != nil {
			b.Fatalf("rpc request failed: %v", err)
		}
	}
	b.StopTimer()
}

func BenchmarkCall_Parallel(b *testing.B) {
	c := newBenchPair(b)
	ctx := context.Background()
	b.ReportAllocs()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := c.Call(ctx, "getSensors", nil); err != nil {
				b.Errorf("rpc request failed: %v", err)
				return
			}
		}
	})
	b.StopTimer()
}
