package tree

import (
	"fmt"

	"github.com/duke-gcb/ddsclient/pkg/errors"
)

// Action is what reconciliation decided to do with one local node.
type Action int

const (
	// ActionNone means the node already exists remotely with the same
	// content. Nothing is transferred.
	ActionNone Action = iota

	// ActionCreateFolder means the folder must be created remotely.
	ActionCreateFolder

	// ActionUploadNew means the file doesn't exist remotely and its content
	// must be uploaded as a new file.
	ActionUploadNew

	// ActionUploadVersion means the file exists remotely with different
	// content, so the upload becomes a new version of it.
	ActionUploadVersion
)

// Step pairs a local tree index with the action to take for it.
type Step struct {
	Index  int
	Action Action
}

// Plan is the ordered outcome of reconciling a local tree against a remote
// one. Steps are in preorder, so a folder is always created before anything
// inside it is sent.
type Plan struct {
	Steps []Step
}

// FoldersToCreate counts pending folder creations.
func (p Plan) FoldersToCreate() int {
	return p.count(ActionCreateFolder)
}

// FilesToSend counts files that will be transferred.
func (p Plan) FilesToSend() int {
	return p.count(ActionUploadNew) + p.count(ActionUploadVersion)
}

func (p Plan) count(action Action) int {
	n := 0
	for _, step := range p.Steps {
		if step.Action == action {
			n++
		}
	}
	return n
}

// BytesToSend sums the sizes of the files the plan will transfer.
func (p Plan) BytesToSend(local *Tree) int64 {
	var total int64
	for _, step := range p.Steps {
		if step.Action == ActionUploadNew || step.Action == ActionUploadVersion {
			total += local.At(step.Index).Size
		}
	}
	return total
}

// Reconcile matches a local tree against the remote tree by name, level by
// level. Matched nodes get their remote id (and current version id for
// files) copied into the local tree; the returned plan lists what must be
// created or sent to make the remote match local content.
//
// A remote file where local has a folder (or the reverse) is an error: the
// service would reject the transfer anyway, and guessing would destroy
// data.
func Reconcile(local, remote *Tree) (Plan, error) {
	var plan Plan

	remoteFor := map[int]int{0: 0}
	local.Root().RemoteID = remote.Root().RemoteID

	err := local.Walk(func(index int, node *Node) error {
		if index == 0 {
			return nil
		}

		remoteParent, parentExists := remoteFor[node.Parent]
		remoteIndex := -1
		if parentExists {
			remoteIndex = remote.Child(remoteParent, node.Name)
		}

		if remoteIndex < 0 {
			switch node.Kind {
			case KindFolder:
				plan.Steps = append(plan.Steps, Step{Index: index, Action: ActionCreateFolder})
			case KindFile:
				plan.Steps = append(plan.Steps, Step{Index: index, Action: ActionUploadNew})
			}
			return nil
		}

		counterpart := remote.At(remoteIndex)
		if counterpart.Kind != node.Kind {
			return errors.New(fmt.Sprintf("%q is a %s locally but a %s remotely",
				node.Path, node.Kind, counterpart.Kind))
		}

		node.RemoteID = counterpart.RemoteID
		switch node.Kind {
		case KindFolder:
			remoteFor[index] = remoteIndex
		case KindFile:
			node.VersionID = counterpart.VersionID
			if node.Hash != counterpart.Hash {
				plan.Steps = append(plan.Steps, Step{Index: index, Action: ActionUploadVersion})
			}
		}
		return nil
	})
	if err != nil {
		return Plan{}, err
	}
	return plan, nil
}
