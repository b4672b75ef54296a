package device

import (
	"time"

	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/sets"
)

var patchTypes = sets.NewString(string(types.JSONPatchType), string(types.MergePatchType))

const (
	maxJSONPatchOperations = 1000
	mqttTimeout            = 1 * time.Second
	heartBeatTimeInterval  = 15 * time.Second
	connectTimeout         = 5 * time.Second
	pruneInterval          = 1 * time.Hour
	defaultPollInterval    = 1 * time.Second
	maxReadingsLimit       = 10000
)
