// Package all imports all estimator packages, so they register themselves in the ml
// registry and in encoding/gob.
package all

import (
	_ "github.com/janpfeifer/screenGo/internal/ml/boosting"
	_ "github.com/janpfeifer/screenGo/internal/ml/calibration"
	_ "github.com/janpfeifer/screenGo/internal/ml/ensemble"
	_ "github.com/janpfeifer/screenGo/internal/ml/forest"
	_ "github.com/janpfeifer/screenGo/internal/ml/linear"
	_ "github.com/janpfeifer/screenGo/internal/ml/svm"
)
