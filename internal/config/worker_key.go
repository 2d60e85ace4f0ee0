package config

type WorkerKeyStruct struct {
	PersistViolationsQueue string
	GenerateArtifactsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistViolationsQueue: "persist_violations_queue",
	GenerateArtifactsQueue: "generate_artifacts_queue",
}
