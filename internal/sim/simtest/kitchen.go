package simtest

import (
	"poseplanner.ai/internal/geom"
	"poseplanner.ai/internal/scene"
)

// Kitchen is a small 4 x 4.4 m room: a fridge holding an egg on the far wall,
// a counter with an apple near the door and a microwave on the right wall.
// Reachable positions form a 0.5 m grid from 0.5 to 3.5 on both axes.
func Kitchen() Config {
	var grid []geom.Point3D
	for i := 1; i <= 7; i++ {
		for j := 1; j <= 7; j++ {
			grid = append(grid, geom.Point3D{X: float64(i) * 0.5, Z: float64(j) * 0.5})
		}
	}
	return Config{
		Objects: []scene.ObjectDescriptor{
			{
				ID: "Fridge|1", Type: "Fridge", Name: "Fridge_a1",
				Position: geom.Point3D{X: 2, Z: 4.2}, FacingYaw: 180,
				BoxCenter: geom.Point3D{X: 2, Y: 0.9, Z: 4.2}, BoxSize: geom.Point3D{X: 0.8, Y: 1.8, Z: 0.7},
				Visible: true, Receptacle: true, Openable: true,
				Contents: []string{"Egg|1"},
			},
			{
				ID: "Egg|1", Type: "Egg", Name: "Egg_b2",
				Position:  geom.Point3D{X: 2, Y: 1, Z: 4.2},
				BoxCenter: geom.Point3D{X: 2, Y: 1, Z: 4.2}, BoxSize: geom.Point3D{X: 0.05, Y: 0.06, Z: 0.05},
				Visible: true,
			},
			{
				ID: "CounterTop|1", Type: "CounterTop", Name: "CounterTop_c3",
				Position:  geom.Point3D{X: 1, Y: 0.9, Z: 0.1},
				BoxCenter: geom.Point3D{X: 1, Y: 0.9, Z: 0.1}, BoxSize: geom.Point3D{X: 1.5, Y: 0.05, Z: 0.6},
				Visible: true, Receptacle: true,
				Contents: []string{"Apple|1"},
			},
			{
				ID: "Apple|1", Type: "Apple", Name: "Apple_d4",
				Position:  geom.Point3D{X: 1.2, Y: 0.95, Z: 0.2},
				BoxCenter: geom.Point3D{X: 1.2, Y: 0.95, Z: 0.2}, BoxSize: geom.Point3D{X: 0.1, Y: 0.1, Z: 0.1},
				Visible: true,
			},
			{
				ID: "Microwave|1", Type: "Microwave", Name: "Microwave_e5",
				Position: geom.Point3D{X: 3.9, Y: 1, Z: 1.5}, FacingYaw: 270,
				BoxCenter: geom.Point3D{X: 3.9, Y: 1, Z: 1.5}, BoxSize: geom.Point3D{X: 0.4, Y: 0.3, Z: 0.5},
				Visible: true, Receptacle: true, Openable: true, Toggleable: true,
			},
			{
				ID: "Floor|1", Type: scene.FloorType,
				BoxCenter: geom.Point3D{X: 2, Z: 2.2}, BoxSize: geom.Point3D{X: 4, Y: 0.01, Z: 4.4},
				Visible: true, Receptacle: true,
			},
		},
		Agent: scene.AgentPose{
			Position: geom.Point3D{X: 2, Z: 2},
			Standing: true,
		},
		Bounds: []geom.Point3D{
			{X: 4, Y: 2.5, Z: 4.4}, {X: 4, Y: 2.5, Z: 0},
			{X: 4, Z: 4.4}, {X: 4, Z: 0},
			{Y: 2.5, Z: 4.4}, {Y: 2.5, Z: 0},
			{Z: 4.4}, {},
		},
		Reachable: grid,
	}
}
