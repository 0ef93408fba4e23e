// Stress test comparing the spatial hash broad phase against a naive O(n²) sweep
package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"phys3d/internal/dynamics"
	"phys3d/internal/engine"
)

type sphere struct {
	pos    mgl32.Vec3
	radius float32
}

func main() {
	testCounts := []int{100, 500, 1000, 2000, 5000, 10000}

	for _, count := range testCounts {
		testBroadPhase(count)
	}
}

func testBroadPhase(count int) {
	rng := rand.New(rand.NewSource(42)) // Consistent results

	// Spawn in a cube, size scales with count to keep density reasonable
	spawnSize := float32(50.0) + float32(count)/100.0

	spheres := make([]sphere, count)
	for i := range spheres {
		spheres[i] = sphere{
			pos: mgl32.Vec3{
				rng.Float32()*spawnSize - spawnSize/2,
				rng.Float32()*spawnSize - spawnSize/2,
				rng.Float32()*spawnSize - spawnSize/2,
			},
			radius: 0.5 + rng.Float32()*0.5,
		}
	}

	// Naive O(n²) pair sweep
	cpuStart := time.Now()
	const iterations = 10
	var naivePairs int
	for iter := 0; iter < iterations; iter++ {
		naivePairs = 0
		for i := 0; i < len(spheres); i++ {
			for j := i + 1; j < len(spheres); j++ {
				delta := spheres[i].pos.Sub(spheres[j].pos)
				radiusSum := spheres[i].radius + spheres[j].radius
				if delta.Dot(delta) < radiusSum*radiusSum {
					naivePairs++
				}
			}
		}
	}
	naiveTime := time.Since(cpuStart) / iterations

	// Full simulation step with the grid broad phase. Gravity off so the
	// arrangement stays put across iterations.
	cfg := dynamics.DefaultConfig()
	cfg.Gravity = mgl32.Vec3{}
	sim := dynamics.NewEngine(cfg)

	scene := engine.NewScene("stress")
	for _, s := range spheres {
		e := scene.CreateEntity("ball")
		shape, err := sim.CreateShape([]dynamics.ShapePart{dynamics.SpherePart(s.radius)}, engine.Aabb{})
		if err != nil {
			panic(err)
		}
		body, err := sim.CreateRigidBody(e, shape, dynamics.RigidBodyParams{
			Motion: dynamics.MotionDynamic,
			Mass:   1,
		})
		if err != nil {
			panic(err)
		}
		sim.SetBodyTransform(body, s.pos, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})
	}

	gridStart := time.Now()
	for iter := 0; iter < iterations; iter++ {
		sim.AdvanceFrame(17 * time.Millisecond)
	}
	gridTime := time.Since(gridStart) / iterations
	gridPairs := len(sim.ActivePairs())

	speedup := float64(naiveTime) / float64(gridTime)
	fmt.Printf("%5d objects: grid step %8v (%4d pairs) | naive sweep %10v (%4d pairs) | %.1fx\n",
		count, gridTime.Round(time.Microsecond), gridPairs,
		naiveTime.Round(time.Microsecond), naivePairs, speedup)
}
