package core

import (
	"context"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/fancylads/bespoke/pkg/remote"
)

// resultsBase extends unitBase for units that produce result artifacts.
// Each run gets a uuid-named results directory on the SUT, mirrored
// locally once the unit finishes.
type resultsBase struct {
	unitBase

	resultsID     string
	localResults  string
	remoteResults string
}

func newResultsBase(name string, sut *SystemUnderTest, env *Environment, timeout int) resultsBase {
	id := uuid.NewString()
	return resultsBase{
		unitBase:      newUnitBase(name, sut, env, timeout),
		resultsID:     id,
		localResults:  filepath.Join(env.LocalResults, id),
		remoteResults: remotePath(sut.InstallRoot(), DirResults, id),
	}
}

// LocalResults is the local directory holding the unit's pulled-back
// result artifacts.
func (r *resultsBase) LocalResults() string { return r.localResults }

// RemoteResults is the on-SUT directory the unit writes artifacts into.
func (r *resultsBase) RemoteResults() string { return r.remoteResults }

func (r *resultsBase) setupResults(ctx context.Context, session remote.Session) error {
	if err := r.ping(ctx, session); err != nil {
		return err
	}
	return session.CreateDir(ctx, r.remoteResults)
}

func (r *resultsBase) fetchResults(ctx context.Context, session remote.Session) error {
	return session.FetchDir(ctx, r.remoteResults, r.localResults)
}
