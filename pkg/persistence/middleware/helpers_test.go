package middleware_test

import (
	"time"

	"github.com/aretw0/wmbridge/pkg/domain"
)

func leaf(name string, v domain.Value) *domain.SnapshotNode {
	return &domain.SnapshotNode{Name: name, Value: &v}
}

func branch(name string, children ...*domain.SnapshotNode) *domain.SnapshotNode {
	return &domain.SnapshotNode{Name: name, Children: children}
}

func sampleSnapshot(agent string) *domain.Snapshot {
	return &domain.Snapshot{
		Agent: agent,
		Cycle: 9,
		Taken: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Root: branch("input-link",
			branch("self", leaf("battery-voltage", domain.Float(3.9))),
			branch("faces",
				branch("face2",
					leaf("name", domain.String("ana")),
					leaf("expression", domain.String("happy")),
				),
			),
			branch("objects",
				branch("obj7", leaf("name", domain.String("cube-1"))),
			),
		),
	}
}
