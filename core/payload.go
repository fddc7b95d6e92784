package core

import (
	"reflect"
	"sync"
	"unsafe"

	"github.com/Swind/go-task-graph/pool"
)

// PayloadSize is the number of bytes a task can hold inline for typed data.
// Values that are larger, more than 8-byte aligned, or contain pointers are
// boxed on the heap instead.
const PayloadSize = 48

// Destroyer is implemented by typed task data that must release resources
// when the task tears down.
type Destroyer = pool.Destroyer

type payloadMode uint8

const (
	payloadEmpty payloadMode = iota
	payloadInline
	payloadBoxed
)

// payload holds typed task data. Inline words are never scanned by the GC, so
// only pointer-free values may live there.
type payload struct {
	words [PayloadSize / 8]uint64
	boxed any
	typ   reflect.Type
	mode  payloadMode
}

var inlineTypes sync.Map // reflect.Type -> bool

func fitsInline[D any]() bool {
	typ := reflect.TypeFor[D]()
	if v, ok := inlineTypes.Load(typ); ok {
		return v.(bool)
	}
	ok := typ.Size() <= PayloadSize && typ.Align() <= 8 && !hasPointers(typ)
	inlineTypes.Store(typ, ok)
	return ok
}

func hasPointers(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Array:
		return typ.Len() > 0 && hasPointers(typ.Elem())
	case reflect.Struct:
		for i := 0; i < typ.NumField(); i++ {
			if hasPointers(typ.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func storePayload[D any](p *payload, data D) {
	p.typ = reflect.TypeFor[D]()
	if fitsInline[D]() {
		*(*D)(unsafe.Pointer(&p.words)) = data
		p.mode = payloadInline
		return
	}
	boxed := new(D)
	*boxed = data
	p.boxed = boxed
	p.mode = payloadBoxed
}

func loadPayload[D any](p *payload) *D {
	if p.mode == payloadEmpty {
		return nil
	}
	if want := reflect.TypeFor[D](); p.typ != want {
		violation("data", "task holds %v, not %v", p.typ, want)
	}
	if p.mode == payloadInline {
		return (*D)(unsafe.Pointer(&p.words))
	}
	v, ok := p.boxed.(*D)
	if !ok {
		violation("data", "task holds %T, not %v", p.boxed, reflect.TypeFor[D]())
	}
	return v
}

func destroyPayload[D any](p *payload) {
	if v := loadPayload[D](p); v != nil {
		if d, ok := any(v).(Destroyer); ok {
			d.Destroy()
		}
	}
	*p = payload{}
}

// Inline reports whether the task stores its typed data inside the task slot.
func (t *Task) Inline() bool {
	return t.payload.mode == payloadInline
}

// Data returns the typed data the task was created with, or nil if the task
// carries none. D must match the type given to CreateWith; any other type is a
// contract violation.
func Data[D any](t *Task) *D {
	return loadPayload[D](&t.payload)
}

// CreateWith allocates a task from w's pool whose callback receives data. The
// data lives inline in the task slot when it fits; it is destroyed exactly once
// when the task and all of its descendants have finished.
func CreateWith[D any](w *Worker, parent Handle, data D, fn func(t *Task, data *D)) (Handle, error) {
	h, _, err := allocateWith(w, parent, data, fn)
	return h, err
}

func allocateWith[D any](w *Worker, parent Handle, data D, fn func(t *Task, data *D)) (Handle, *Task, error) {
	h, t, err := w.allocate(invokeWith[D], parent)
	if err != nil {
		return Handle{}, nil, err
	}
	t.call = fn
	storePayload(&t.payload, data)
	t.teardown = teardownWith[D]
	return h, t, nil
}

// AddWith is CreateWith followed by Submit.
func AddWith[D any](w *Worker, parent Handle, data D, fn func(t *Task, data *D)) (Handle, error) {
	h, err := CreateWith(w, parent, data, fn)
	if err != nil {
		return Handle{}, err
	}
	if err := w.Submit(h); err != nil {
		w.Discard(h)
		return Handle{}, err
	}
	return h, nil
}

// SpawnWith creates a typed child of t on the worker executing t and submits it.
func SpawnWith[D any](t *Task, data D, fn func(t *Task, data *D)) (Handle, error) {
	return AddWith(t.executing(), t.self, data, fn)
}

func invokeWith[D any](t *Task) {
	fn := t.call.(func(*Task, *D))
	fn(t, loadPayload[D](&t.payload))
}

func teardownWith[D any](t *Task) {
	destroyPayload[D](&t.payload)
}
