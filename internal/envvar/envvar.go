package envvar

const (
	// AIServiceEnv is the environment variable used to determine the environment
	AIServiceEnv = "AI_SERVICE_ENV"

	// AIServiceAPIKey holds the shared secret expected in the X-API-Key header.
	// Leaving it unset disables the gate.
	AIServiceAPIKey = "AI_SERVICE_API_KEY"

	// AIServiceTestMode switches every model family to the deterministic stub runtimes.
	AIServiceTestMode = "AI_SERVICE_TEST_MODE"

	// AIServiceModelsPath overrides storage.models_dir.
	AIServiceModelsPath = "AI_SERVICE_MODELS_PATH"

	// AIServiceHTTPAddr overrides server.http_addr.
	AIServiceHTTPAddr = "AI_SERVICE_HTTP_ADDR"

	// AIServiceGRPCAddr overrides server.grpc_addr.
	AIServiceGRPCAddr = "AI_SERVICE_GRPC_ADDR"

	// MediaRoot is the directory shared with the platform; every media path must resolve inside it.
	MediaRoot = "MEDIA_ROOT"
)
