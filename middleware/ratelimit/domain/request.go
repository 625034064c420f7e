package domain

// Request é a visão mínima de uma requisição já parseada que o controller
// precisa. Os métodos de lookup retornam (valor, presente).
type Request interface {
	RemoteAddr() string
	RemotePort() int
	UserAgent() (string, bool)
	Header(name string) (string, bool)
	Cookie(name string) (string, bool)
	Parameter(name string) (string, bool)
	Path() string
	ServerName() string
}
