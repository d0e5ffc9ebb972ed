package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/padherd/internal/controller"
)

func newPad(id string) controller.Controller {
	return controller.NewBase(controller.VariantOf(controller.ModelXInput), controller.Details{ContainerID: id}, nil)
}

func TestNew(t *testing.T) {
	r := New()
	if r == nil {
		t.Fatal("New() returned nil")
	}
	if r.Count() != 0 {
		t.Errorf("New() should start empty, got %d", r.Count())
	}
}

func TestPutGetDelete(t *testing.T) {
	r := New()
	r.Put(newPad("usb-1"))

	if _, ok := r.Get("USB-1"); !ok {
		t.Fatal("Get() did not find the controller")
	}
	if _, ok := r.Get(" usb-1 "); !ok {
		t.Error("Get() should normalize the identity")
	}
	if !r.Delete("usb-1") {
		t.Error("Delete() = false for a registered controller")
	}
	if r.Delete("usb-1") {
		t.Error("Delete() = true for a removed controller")
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d after delete, want 0", r.Count())
	}
}

func TestPutSameIdentityKeepsOneEntry(t *testing.T) {
	r := New()
	first := newPad("usb-1")
	second := newPad("usb-1")

	r.Put(first)
	r.Put(second)

	if r.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", r.Count())
	}
	got, _ := r.Get("usb-1")
	if got != second {
		t.Error("Put() should overwrite the existing entry")
	}
}

func TestAllIsOrdered(t *testing.T) {
	r := New()
	for _, id := range []string{"c", "a", "b"} {
		r.Put(newPad(id))
	}
	r.PutAs("", controller.NewPlaceholder(controller.ModelXInput))

	all := r.All()
	want := []string{"", "A", "B", "C"}
	if len(all) != len(want) {
		t.Fatalf("All() returned %d controllers, want %d", len(all), len(want))
	}
	for i, c := range all {
		if c.ID() != want[i] {
			t.Errorf("All()[%d] = %q, want %q", i, c.ID(), want[i])
		}
	}

	c, ok := r.Find(func(c controller.Controller) bool { return c.IsPhysical() })
	if !ok || c.ID() != "A" {
		t.Errorf("Find(physical) = %v, %v; want A", c, ok)
	}
}

func TestPowerCycling(t *testing.T) {
	r := New()
	r.SetPowerCycling("usb-1", true)

	if !r.IsPowerCycling("USB-1") {
		t.Error("IsPowerCycling() = false after mark")
	}
	if _, ok := r.PowerCycling()["USB-1"]; !ok {
		t.Error("PowerCycling() snapshot misses the marked identity")
	}

	r.SetPowerCycling("usb-1", false)
	if r.IsPowerCycling("usb-1") {
		t.Error("IsPowerCycling() = true after clear")
	}
}

func TestWaitFor(t *testing.T) {
	t.Run("already registered", func(t *testing.T) {
		r := New()
		r.Put(newPad("a"))
		if _, err := r.WaitFor(context.Background(), "a", time.Millisecond); err != nil {
			t.Errorf("WaitFor() error = %v", err)
		}
	})

	t.Run("registered while waiting", func(t *testing.T) {
		r := New()
		go func() {
			time.Sleep(20 * time.Millisecond)
			r.Put(newPad("a"))
		}()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if _, err := r.WaitFor(ctx, "a", 5*time.Millisecond); err != nil {
			t.Errorf("WaitFor() error = %v", err)
		}
	})

	t.Run("never registered", func(t *testing.T) {
		r := New()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		if _, err := r.WaitFor(ctx, "a", 5*time.Millisecond); !errors.Is(err, ErrNotFound) {
			t.Errorf("WaitFor() error = %v, want ErrNotFound", err)
		}
	})
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Put(newPad("shared"))
			r.SetPowerCycling("shared", true)
		}()
		go func() {
			defer wg.Done()
			_ = r.All()
			_ = r.IsPowerCycling("shared")
		}()
	}
	wg.Wait()

	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
}
