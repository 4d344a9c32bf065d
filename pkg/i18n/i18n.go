package i18n

import (
	"strings"
	"sync/atomic"
)

const (
	PortugueseBR = "pt-BR"
	English      = "en"
)

var active atomic.Value

func init() {
	active.Store(PortugueseBR)
}

var translations = map[string]string{
	"invalid request":                          "requisição inválida",
	"unauthorized":                             "não autorizado",
	"missing authorization token":              "token de autenticação ausente",
	"invalid token":                            "token inválido",
	"failed to generate token":                 "erro ao gerar token",
	"failed to validate user":                  "erro ao validar usuário",
	"user not found":                           "usuário não encontrado",
	"failed to fetch user":                     "erro ao buscar usuário",
	"failed to fetch profile":                  "erro ao buscar perfil",
	"failed to update profile":                 "erro ao atualizar perfil",
	"name is required":                         "nome é obrigatório",
	"name must be between 2 and 64 characters": "o nome deve ter entre 2 e 64 caracteres",
	"invalid email":                            "e-mail inválido",
	"password must be at least 6 characters":   "a senha deve ter pelo menos 6 caracteres",
	"email already registered":                 "e-mail já cadastrado",
	"invalid email or password":                "e-mail ou senha inválidos",
	"rate limiter error":                       "erro no limitador de requisições",
	"rate limit exceeded":                      "limite de requisições excedido",
	"internal server error":                    "erro interno do servidor",
	"not found":                                "não encontrado",

	"cannot create conversation with yourself": "não é possível iniciar uma conversa consigo mesmo",
	"participant not found":                    "participante não encontrado",
	"failed to create conversation":            "erro ao criar conversa",
	"failed to fetch conversations":            "erro ao buscar conversas",
	"failed to fetch messages":                 "erro ao buscar mensagens",
	"failed to check conversation":             "erro ao verificar conversa",
	"not a participant":                        "você não participa desta conversa",
	"message content or shared post required":  "informe o conteúdo da mensagem ou uma publicação",
	"shared post not found":                    "publicação compartilhada não encontrada",
	"failed to send message":                   "erro ao enviar mensagem",
	"failed to mark messages as read":          "erro ao marcar mensagens como lidas",
	"failed to count unread messages":          "erro ao contar mensagens não lidas",
	"websocket upgrade failed":                 "erro ao abrir conexão websocket",

	"image is required":        "imagem é obrigatória",
	"failed to create story":   "erro ao criar story",
	"failed to fetch stories":  "erro ao buscar stories",
	"failed to store file":     "erro ao salvar arquivo",
	"file too large":           "arquivo muito grande",
	"failed to reap stories":   "erro ao remover stories expirados",

	"post not found":                "publicação não encontrada",
	"failed to create post":         "erro ao criar publicação",
	"failed to fetch posts":         "erro ao buscar publicações",
	"failed to delete post":         "erro ao excluir publicação",
	"can only delete own posts":     "você só pode excluir suas próprias publicações",
	"failed to toggle like":         "erro ao curtir publicação",
	"comment cannot be empty":       "o comentário não pode estar vazio",
	"failed to add comment":         "erro ao comentar",
	"failed to fetch comments":      "erro ao buscar comentários",
	"cannot follow yourself":        "você não pode seguir a si mesmo",
	"already following":             "você já segue este usuário",
	"not following":                 "você não segue este usuário",
	"failed to follow user":         "erro ao seguir usuário",
	"failed to unfollow user":       "erro ao deixar de seguir usuário",
	"failed to fetch profile stats": "erro ao buscar estatísticas do perfil",
	"failed to fetch follows":       "erro ao buscar seguidores",

	"establishment not found":                         "estabelecimento não encontrado",
	"service not found for establishment":             "serviço não encontrado para este estabelecimento",
	"date is required":                                "data é obrigatória",
	"booking not found":                               "agendamento não encontrado",
	"can only cancel own bookings":                    "você só pode cancelar seus próprios agendamentos",
	"failed to create booking":                        "erro ao criar agendamento",
	"failed to fetch bookings":                        "erro ao buscar agendamentos",
	"failed to cancel booking":                        "erro ao cancelar agendamento",
	"failed to fetch establishment":                   "erro ao buscar estabelecimento",
	"name and address are required":                   "nome e endereço são obrigatórios",
	"name, price and establishment name are required": "nome, preço e nome do estabelecimento são obrigatórios",
	"failed to create establishment":                  "erro ao criar estabelecimento",
	"failed to create product":                        "erro ao criar produto",
	"invalid api key":                                 "chave de API inválida",
	"establishment created":                           "estabelecimento criado",
	"product created":                                 "produto criado",
}

var prefixTranslations = map[string]string{
	"failed to hash password:":   "erro ao processar senha",
	"failed to register user:":   "erro ao cadastrar usuário",
	"failed to query user:":      "erro ao buscar dados do usuário",
	"failed to sign token:":      "erro ao assinar token",
	"failed to parse token:":     "token inválido",
	"unexpected signing method:": "método de assinatura do token inválido",
}

// SetLocale switches the process-wide locale. Unknown locales fall back to
// pt-BR.
func SetLocale(locale string) {
	switch locale {
	case English, "en-US":
		active.Store(English)
	default:
		active.Store(PortugueseBR)
	}
}

func Locale() string {
	return active.Load().(string)
}

func Translate(message string) string {
	if Locale() == English {
		return message
	}
	if translated, ok := translations[message]; ok {
		return translated
	}
	for prefix, translated := range prefixTranslations {
		if strings.HasPrefix(message, prefix) {
			return translated
		}
	}
	return message
}
