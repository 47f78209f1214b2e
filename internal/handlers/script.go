package handlers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/muurk/scenebridge/internal/logging"
	"github.com/muurk/scenebridge/internal/router"
	"github.com/muurk/scenebridge/internal/scene"
)

// DefaultScriptTimeout bounds a single execute_code run.
const DefaultScriptTimeout = 30 * time.Second

// ErrScriptingDisabled is returned by execute_code when scripting is off.
var ErrScriptingDisabled = errors.New("Code execution is disabled")

// Scripting holds the live execute_code settings. The config watcher
// updates it while commands are running.
type Scripting struct {
	enabled atomic.Bool
	timeout atomic.Duration
}

// NewScripting creates Scripting settings.
func NewScripting(enabled bool, timeout time.Duration) *Scripting {
	s := &Scripting{}
	s.Set(enabled, timeout)
	return s
}

// Set replaces the settings. A non-positive timeout selects
// DefaultScriptTimeout.
func (s *Scripting) Set(enabled bool, timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultScriptTimeout
	}
	s.enabled.Store(enabled)
	s.timeout.Store(timeout)
}

// Enabled reports whether execute_code may run.
func (s *Scripting) Enabled() bool {
	return s.enabled.Load()
}

func (s *Scripting) handler(sc *scene.Scene) router.Handler {
	return func(p router.Params) (any, error) {
		if err := p.Expect("code"); err != nil {
			return nil, err
		}
		code, err := p.String("code")
		if err != nil {
			return nil, err
		}
		if !s.enabled.Load() {
			return nil, ErrScriptingDisabled
		}
		return runScript(sc, code, s.timeout.Load())
	}
}

// runScript evaluates code with the scene bound as a global. The script has
// full access to the scene; the timeout is the only limit.
func runScript(sc *scene.Scene, code string, timeout time.Duration) (any, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	var out strings.Builder
	capture := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		out.WriteString(strings.Join(parts, " "))
		out.WriteByte('\n')
		return goja.Undefined()
	}

	console := vm.NewObject()
	_ = console.Set("log", capture)
	for name, value := range map[string]any{
		"print":   capture,
		"console": console,
		"scene":   sceneAPI(vm, sc),
	} {
		if err := vm.Set(name, value); err != nil {
			return nil, fmt.Errorf("Code execution failed: %w", err)
		}
	}

	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt("timeout")
	})
	defer timer.Stop()

	start := time.Now()
	value, err := vm.RunString(code)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			logging.Warn("Script interrupted", zap.Duration("timeout", timeout))
			return nil, fmt.Errorf("Code execution failed: script timed out after %s", timeout)
		}
		return nil, fmt.Errorf("Code execution failed: %v", err)
	}
	logging.Debug("Script finished", zap.Duration("elapsed", time.Since(start)))

	result := map[string]any{
		"executed": true,
		"message":  "Code executed successfully",
		"output":   out.String(),
	}
	if value != nil && !goja.IsUndefined(value) && !goja.IsNull(value) {
		result["result"] = value.Export()
	}
	return result, nil
}

// sceneAPI exposes the scene to scripts. Functions returning an error throw
// it as a JavaScript exception.
func sceneAPI(vm *goja.Runtime, sc *scene.Scene) *goja.Object {
	api := vm.NewObject()
	_ = api.Set("info", sc.Info)
	_ = api.Set("get", sc.Describe)
	_ = api.Set("objects", func() []string {
		objs := sc.Objects()
		names := make([]string, len(objs))
		for i, o := range objs {
			names[i] = o.Name
		}
		return names
	})
	_ = api.Set("create", func(kind, name string) (string, error) {
		if kind == "" {
			kind = "CUBE"
		}
		obj, err := sc.CreatePrimitive(kind, scene.Vec3{}, scene.Vec3{}, scene.Vec3{1, 1, 1}, name)
		if err != nil {
			return "", err
		}
		return obj.Name, nil
	})
	_ = api.Set("move", vectorSetter(sc, func(o *scene.Object, v scene.Vec3) { o.Location = v }))
	_ = api.Set("rotate", vectorSetter(sc, func(o *scene.Object, v scene.Vec3) { o.Rotation = v }))
	_ = api.Set("resize", vectorSetter(sc, func(o *scene.Object, v scene.Vec3) { o.Scale = v }))
	_ = api.Set("remove", sc.Delete)
	_ = api.Set("rename", func(name, newName string) (string, error) {
		obj, err := sc.Object(name)
		if err != nil {
			return "", err
		}
		return sc.Rename(obj, newName), nil
	})
	_ = api.Set("setCamera", sc.SetCamera)
	_ = api.Set("camera", sc.Camera)
	_ = api.Set("materialCount", sc.Materials)
	_ = api.Set("setMaterial", func(object, material string, color []float64) error {
		if err := checkComponents(color); err != nil {
			return err
		}
		mat := sc.EnsureMaterial(material)
		if len(color) >= 3 {
			mat.BaseColor = [4]float64{color[0], color[1], color[2], 1}
		}
		return sc.AssignMaterial(object, material)
	})
	return api
}

func vectorSetter(sc *scene.Scene, set func(*scene.Object, scene.Vec3)) func(string, []float64) error {
	return func(name string, v []float64) error {
		if len(v) != 3 {
			return fmt.Errorf("expected 3 numbers, got %d", len(v))
		}
		if err := checkComponents(v); err != nil {
			return err
		}
		obj, err := sc.Object(name)
		if err != nil {
			return err
		}
		set(obj, scene.VecFrom(v))
		return nil
	}
}

func checkComponents(v []float64) error {
	for _, f := range v {
		if !router.ValidComponent(f) {
			return fmt.Errorf("values must be finite and within ±%g", router.MaxVectorComponent)
		}
	}
	return nil
}
