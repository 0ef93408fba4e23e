// Headless physics sandbox: drops dynamic balls onto a floor, drives a
// kinematic platform through a trigger zone, and logs collision events.
package main

import (
	"context"
	"flag"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"phys3d/internal/config"
	"phys3d/internal/dynamics"
	"phys3d/internal/engine"
	"phys3d/internal/loop"
	"phys3d/internal/physics"
)

func main() {
	configPath := flag.String("config", "", "simulation config file (yaml)")
	frames := flag.Int("frames", 0, "stop after this many frames (0 = run until interrupted)")
	flag.Parse()

	logger := log.New(os.Stdout, "", log.Ltime|log.Lmicroseconds)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}

	scene := engine.NewScene("sandbox")
	dispatcher := engine.NewDispatcher()
	physicsSystem := physics.NewSystem(scene, dispatcher, cfg.Dynamics(), logger)

	buildWorld(scene, dispatcher, physicsSystem, logger)

	scheduler := loop.NewScheduler(logger)
	scheduler.Register(loop.Func{
		SystemName:     "physics",
		SystemPriority: 0,
		Fn: func(dt time.Duration) error {
			physicsSystem.AdvanceFrame(dt)
			return nil
		},
	})

	platform := scene.FindByName("platform")
	elapsed := time.Duration(0)
	scheduler.Register(loop.Func{
		SystemName:     "platform-drive",
		SystemPriority: -1, // before physics so the step sees the new pose
		Fn: func(dt time.Duration) error {
			elapsed += dt
			t := scene.Transform(platform)
			t.Position = mgl32.Vec3{4 * sin32(float32(elapsed.Seconds())), 1, 0}
			scene.SetTransform(platform, t)
			return nil
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *configPath != "" {
		watchConfig(ctx, *configPath, physicsSystem, logger)
	}

	if *frames > 0 {
		for i := 0; i < *frames; i++ {
			scheduler.RunFrame(17 * time.Millisecond)
		}
		return
	}
	logger.Printf("sandbox running, ctrl-c to stop")
	scheduler.Run(ctx, 17*time.Millisecond)
}

func buildWorld(scene *engine.Scene, dispatcher *engine.Dispatcher, physicsSystem *physics.System, logger *log.Logger) {
	floor := scene.CreateEntity("floor")
	mustSetShape(physicsSystem, floor, []dynamics.ShapePart{
		dynamics.BoxPart(mgl32.Vec3{20, 0.5, 20}),
	})
	mustSetBody(physicsSystem, floor, dynamics.RigidBodyParams{
		Motion:   dynamics.MotionStatic,
		Friction: 0.8,
	})

	platform := scene.CreateEntity("platform")
	scene.SetTransform(platform, engine.Transform{
		Position: mgl32.Vec3{0, 1, 0},
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	})
	mustSetShape(physicsSystem, platform, []dynamics.ShapePart{
		dynamics.BoxPart(mgl32.Vec3{2, 0.25, 2}),
	})
	mustSetBody(physicsSystem, platform, dynamics.RigidBodyParams{
		Motion: dynamics.MotionKinematic,
	})

	zone := scene.CreateEntity("zone")
	scene.SetTransform(zone, engine.Transform{
		Position: mgl32.Vec3{4, 1, 0},
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	})
	mustSetShape(physicsSystem, zone, []dynamics.ShapePart{
		dynamics.BoxPart(mgl32.Vec3{1.5, 1.5, 1.5}),
	})
	physicsSystem.SetTriggerVolumeParams(zone, dynamics.TriggerVolumeParams{})

	for i := 0; i < 8; i++ {
		ball := scene.CreateEntity("ball")
		scene.SetTransform(ball, engine.Transform{
			Position: mgl32.Vec3{float32(i)*0.7 - 2.5, 5 + float32(i)*1.5, 0},
			Rotation: mgl32.QuatIdent(),
			Scale:    mgl32.Vec3{1, 1, 1},
		})
		mustSetShape(physicsSystem, ball, []dynamics.ShapePart{
			dynamics.SpherePart(0.5),
		})
		mustSetBody(physicsSystem, ball, dynamics.RigidBodyParams{
			Motion:          dynamics.MotionDynamic,
			Mass:            1,
			Restitution:     0.4,
			Friction:        0.5,
			RollingFriction: 0.1,
		})
		engine.Connect(dispatcher, ball, func(ev physics.CollisionEnterEvent) {
			logger.Printf("%s hit %s", scene.NameOf(ev.Self), scene.NameOf(ev.Other))
		})
	}

	engine.Connect(dispatcher, zone, func(ev physics.CollisionEnterEvent) {
		logger.Printf("zone entered by %s", scene.NameOf(ev.Other))
	})
	engine.Connect(dispatcher, zone, func(ev physics.CollisionExitEvent) {
		logger.Printf("zone left by %s", scene.NameOf(ev.Other))
	})
}

// watchConfig reloads gravity and sleep tuning when the config file
// changes on disk. Structural settings (cell size, timestep) need a
// restart.
func watchConfig(ctx context.Context, path string, physicsSystem *physics.System, logger *log.Logger) {
	watcher, err := config.NewWatcher(filepath.Dir(path))
	if err != nil {
		logger.Printf("config watch disabled: %v", err)
		return
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case changed, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(changed) != filepath.Clean(path) {
					continue
				}
				cfg, err := config.Load(path)
				if err != nil {
					logger.Printf("config reload: %v", err)
					continue
				}
				d := cfg.Dynamics()
				physicsSystem.SetGravity(d.Gravity)
				logger.Printf("config reloaded, gravity %v", d.Gravity)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Printf("config watch: %v", err)
			}
		}
	}()
}

func mustSetShape(s *physics.System, e engine.Entity, parts []dynamics.ShapePart) {
	if err := s.SetShape(e, parts); err != nil {
		log.Fatalf("set shape: %v", err)
	}
}

func mustSetBody(s *physics.System, e engine.Entity, params dynamics.RigidBodyParams) {
	if err := s.SetRigidBodyParams(e, params); err != nil {
		log.Fatalf("set rigid body: %v", err)
	}
}

func sin32(x float32) float32 {
	return float32(math.Sin(float64(x)))
}
