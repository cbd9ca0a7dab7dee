package config

type HTTP struct {
	Port             uint32 `env:"HTTP_PORT" envDefault:"3003"`
	Swagger          bool   `env:"HTTP_SWAGGER" envDefault:"true"`
	ValidateRequests bool   `env:"HTTP_VALIDATE_REQUESTS" envDefault:"true"`
}
