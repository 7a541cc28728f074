package container

import (
	"log"
	"time"

	"gamehub/backend/internal/models"
)

// Lifecycle hook capabilities. A handler registers under a name and
// implements any subset of these interfaces; dispatch skips the rest.
// Before-hooks run synchronously before the write and may veto by returning
// an error, or rewrite the proposed attrs where the signature allows it.
// After-hooks run asynchronously once the write has committed.

type BeforeCreate interface {
	BeforeContainerCreate(actorID uint, kind models.ContainerKind, attrs CreateAttrs) (CreateAttrs, error)
}

type AfterCreate interface {
	AfterContainerCreate(actorID uint, c *models.Container)
}

type BeforeJoin interface {
	BeforeContainerJoin(actorID uint, c *models.Container) error
}

type AfterJoin interface {
	AfterContainerJoin(actorID uint, c *models.Container)
}

type BeforeLeave interface {
	BeforeContainerLeave(actorID uint, c *models.Container) error
}

type AfterLeave interface {
	AfterContainerLeave(actorID uint, c *models.Container)
}

type BeforeKick interface {
	BeforeUserKicked(actorID, targetID uint, c *models.Container) error
}

type AfterKick interface {
	AfterUserKicked(actorID, targetID uint, c *models.Container)
}

type BeforeUpdate interface {
	BeforeContainerUpdate(actorID uint, c *models.Container, attrs UpdateAttrs) (UpdateAttrs, error)
}

type AfterUpdate interface {
	AfterContainerUpdate(actorID uint, c *models.Container)
}

type BeforeDelete interface {
	BeforeContainerDelete(actorID uint, c *models.Container) error
}

type AfterDelete interface {
	AfterContainerDelete(actorID uint, c *models.Container)
}

type AfterHostChange interface {
	AfterHostChange(c *models.Container, newHostID uint)
}

// afterHookTimeout bounds how long a single after-hook may run before the
// gate stops waiting on it. The hook goroutine itself is not killed.
const afterHookTimeout = 5 * time.Second

type hookEntry struct {
	name string
	impl interface{}
}

// Hooks is the registry the service dispatches lifecycle callbacks through.
// The zero-entry registry is a pass-through.
type Hooks struct {
	entries []hookEntry
}

func NewHooks() *Hooks { return &Hooks{} }

// Register appends a named handler. Registration order is dispatch order;
// attr rewrites chain left to right.
func (h *Hooks) Register(name string, impl interface{}) *Hooks {
	h.entries = append(h.entries, hookEntry{name: name, impl: impl})
	return h
}

func (h *Hooks) beforeCreate(actorID uint, kind models.ContainerKind, attrs CreateAttrs) (CreateAttrs, error) {
	for _, e := range h.entries {
		impl, ok := e.impl.(BeforeCreate)
		if !ok {
			continue
		}
		next, err := impl.BeforeContainerCreate(actorID, kind, attrs)
		if err != nil {
			return attrs, &HookRejectedError{Hook: e.name, Reason: err.Error()}
		}
		attrs = next
	}
	return attrs, nil
}

func (h *Hooks) beforeJoin(actorID uint, c *models.Container) error {
	for _, e := range h.entries {
		if impl, ok := e.impl.(BeforeJoin); ok {
			if err := impl.BeforeContainerJoin(actorID, c); err != nil {
				return &HookRejectedError{Hook: e.name, Reason: err.Error()}
			}
		}
	}
	return nil
}

func (h *Hooks) beforeLeave(actorID uint, c *models.Container) error {
	for _, e := range h.entries {
		if impl, ok := e.impl.(BeforeLeave); ok {
			if err := impl.BeforeContainerLeave(actorID, c); err != nil {
				return &HookRejectedError{Hook: e.name, Reason: err.Error()}
			}
		}
	}
	return nil
}

func (h *Hooks) beforeKick(actorID, targetID uint, c *models.Container) error {
	for _, e := range h.entries {
		if impl, ok := e.impl.(BeforeKick); ok {
			if err := impl.BeforeUserKicked(actorID, targetID, c); err != nil {
				return &HookRejectedError{Hook: e.name, Reason: err.Error()}
			}
		}
	}
	return nil
}

func (h *Hooks) beforeUpdate(actorID uint, c *models.Container, attrs UpdateAttrs) (UpdateAttrs, error) {
	for _, e := range h.entries {
		impl, ok := e.impl.(BeforeUpdate)
		if !ok {
			continue
		}
		next, err := impl.BeforeContainerUpdate(actorID, c, attrs)
		if err != nil {
			return attrs, &HookRejectedError{Hook: e.name, Reason: err.Error()}
		}
		attrs = next
	}
	return attrs, nil
}

func (h *Hooks) beforeDelete(actorID uint, c *models.Container) error {
	for _, e := range h.entries {
		if impl, ok := e.impl.(BeforeDelete); ok {
			if err := impl.BeforeContainerDelete(actorID, c); err != nil {
				return &HookRejectedError{Hook: e.name, Reason: err.Error()}
			}
		}
	}
	return nil
}

func (h *Hooks) afterCreate(actorID uint, c *models.Container) {
	for _, e := range h.entries {
		if impl, ok := e.impl.(AfterCreate); ok {
			runAfter(e.name, func() { impl.AfterContainerCreate(actorID, c) })
		}
	}
}

func (h *Hooks) afterJoin(actorID uint, c *models.Container) {
	for _, e := range h.entries {
		if impl, ok := e.impl.(AfterJoin); ok {
			runAfter(e.name, func() { impl.AfterContainerJoin(actorID, c) })
		}
	}
}

func (h *Hooks) afterLeave(actorID uint, c *models.Container) {
	for _, e := range h.entries {
		if impl, ok := e.impl.(AfterLeave); ok {
			runAfter(e.name, func() { impl.AfterContainerLeave(actorID, c) })
		}
	}
}

func (h *Hooks) afterKick(actorID, targetID uint, c *models.Container) {
	for _, e := range h.entries {
		if impl, ok := e.impl.(AfterKick); ok {
			runAfter(e.name, func() { impl.AfterUserKicked(actorID, targetID, c) })
		}
	}
}

func (h *Hooks) afterUpdate(actorID uint, c *models.Container) {
	for _, e := range h.entries {
		if impl, ok := e.impl.(AfterUpdate); ok {
			runAfter(e.name, func() { impl.AfterContainerUpdate(actorID, c) })
		}
	}
}

func (h *Hooks) afterDelete(actorID uint, c *models.Container) {
	for _, e := range h.entries {
		if impl, ok := e.impl.(AfterDelete); ok {
			runAfter(e.name, func() { impl.AfterContainerDelete(actorID, c) })
		}
	}
}

func (h *Hooks) afterHostChange(c *models.Container, newHostID uint) {
	for _, e := range h.entries {
		if impl, ok := e.impl.(AfterHostChange); ok {
			runAfter(e.name, func() { impl.AfterHostChange(c, newHostID) })
		}
	}
}

// runAfter isolates one after-hook call: panics are recovered and logged,
// and the supervising goroutine stops waiting after afterHookTimeout. The
// operation that triggered the hook has already committed, so nothing here
// can affect the caller.
func runAfter(name string, fn func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				log.Printf("container: after-hook %s panicked: %v", name, r)
			}
		}()
		fn()
	}()
	go func() {
		select {
		case <-done:
		case <-time.After(afterHookTimeout):
			log.Printf("container: after-hook %s did not finish within %s", name, afterHookTimeout)
		}
	}()
}
