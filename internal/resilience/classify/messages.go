package classify

import "strings"

// Supported locales.
const (
	LocaleEN = "en"
	LocaleES = "es"
	LocaleFR = "fr"
	LocaleDE = "de"

	DefaultLocale = LocaleEN
)

// userMessages is keyed by code, then locale. The "unknown" entry is the
// fallback for any code without its own text.
var userMessages = map[string]map[string]string{
	"unavailable": {
		LocaleEN: "The service is temporarily unavailable. Please try again in a moment.",
		LocaleES: "El servicio no está disponible temporalmente. Inténtalo de nuevo en un momento.",
		LocaleFR: "Le service est temporairement indisponible. Veuillez réessayer dans un instant.",
		LocaleDE: "Der Dienst ist vorübergehend nicht verfügbar. Bitte versuche es gleich noch einmal.",
	},
	"deadline-exceeded": {
		LocaleEN: "The request took too long. Please check your connection and try again.",
		LocaleES: "La solicitud tardó demasiado. Comprueba tu conexión e inténtalo de nuevo.",
		LocaleFR: "La requête a pris trop de temps. Vérifiez votre connexion et réessayez.",
		LocaleDE: "Die Anfrage hat zu lange gedauert. Bitte prüfe deine Verbindung und versuche es erneut.",
	},
	"unauthenticated": {
		LocaleEN: "Your session has expired. Please sign in again.",
		LocaleES: "Tu sesión ha caducado. Vuelve a iniciar sesión.",
		LocaleFR: "Votre session a expiré. Veuillez vous reconnecter.",
		LocaleDE: "Deine Sitzung ist abgelaufen. Bitte melde dich erneut an.",
	},
	"permission-denied": {
		LocaleEN: "You do not have permission to perform this action.",
		LocaleES: "No tienes permiso para realizar esta acción.",
		LocaleFR: "Vous n'avez pas l'autorisation d'effectuer cette action.",
		LocaleDE: "Du hast keine Berechtigung für diese Aktion.",
	},
	"invalid-argument": {
		LocaleEN: "Some of the information provided is not valid. Please review it and try again.",
		LocaleES: "Parte de la información proporcionada no es válida. Revísala e inténtalo de nuevo.",
		LocaleFR: "Certaines informations fournies ne sont pas valides. Vérifiez-les et réessayez.",
		LocaleDE: "Einige Angaben sind ungültig. Bitte überprüfe sie und versuche es erneut.",
	},
	"failed-precondition": {
		LocaleEN: "This action cannot be completed right now. Please refresh and try again.",
		LocaleES: "Esta acción no se puede completar ahora. Actualiza e inténtalo de nuevo.",
		LocaleFR: "Cette action ne peut pas être effectuée pour le moment. Actualisez et réessayez.",
		LocaleDE: "Diese Aktion kann gerade nicht ausgeführt werden. Bitte aktualisiere und versuche es erneut.",
	},
	"resource-exhausted": {
		LocaleEN: "Usage limits have been reached. Please try again later.",
		LocaleES: "Se han alcanzado los límites de uso. Inténtalo más tarde.",
		LocaleFR: "Les limites d'utilisation ont été atteintes. Veuillez réessayer plus tard.",
		LocaleDE: "Das Nutzungslimit wurde erreicht. Bitte versuche es später erneut.",
	},
	"not-found": {
		LocaleEN: "The requested item could not be found.",
		LocaleES: "No se encontró el elemento solicitado.",
		LocaleFR: "L'élément demandé est introuvable.",
		LocaleDE: "Das angeforderte Element wurde nicht gefunden.",
	},
	"already-exists": {
		LocaleEN: "This item already exists.",
		LocaleES: "Este elemento ya existe.",
		LocaleFR: "Cet élément existe déjà.",
		LocaleDE: "Dieses Element existiert bereits.",
	},
	"aborted": {
		LocaleEN: "The operation was interrupted by a concurrent change. Please try again.",
		LocaleES: "La operación se interrumpió por un cambio simultáneo. Inténtalo de nuevo.",
		LocaleFR: "L'opération a été interrompue par une modification concurrente. Veuillez réessayer.",
		LocaleDE: "Der Vorgang wurde durch eine gleichzeitige Änderung unterbrochen. Bitte versuche es erneut.",
	},
	"internal": {
		LocaleEN: "Something went wrong on our side. Please try again.",
		LocaleES: "Algo salió mal por nuestra parte. Inténtalo de nuevo.",
		LocaleFR: "Une erreur s'est produite de notre côté. Veuillez réessayer.",
		LocaleDE: "Bei uns ist etwas schiefgelaufen. Bitte versuche es erneut.",
	},
	"data-loss": {
		LocaleEN: "Some data could not be read correctly. Please contact support.",
		LocaleES: "Algunos datos no se pudieron leer correctamente. Ponte en contacto con soporte.",
		LocaleFR: "Certaines données n'ont pas pu être lues correctement. Veuillez contacter le support.",
		LocaleDE: "Einige Daten konnten nicht korrekt gelesen werden. Bitte wende dich an den Support.",
	},
	"cancelled": {
		LocaleEN: "The operation was cancelled.",
		LocaleES: "La operación fue cancelada.",
		LocaleFR: "L'opération a été annulée.",
		LocaleDE: "Der Vorgang wurde abgebrochen.",
	},
	"unknown": {
		LocaleEN: "An unexpected error occurred. Please try again.",
		LocaleES: "Se produjo un error inesperado. Inténtalo de nuevo.",
		LocaleFR: "Une erreur inattendue s'est produite. Veuillez réessayer.",
		LocaleDE: "Ein unerwarteter Fehler ist aufgetreten. Bitte versuche es erneut.",
	},
}

// UserMessage resolves the localized text for code. Codes with a service
// prefix ("storage/not-found") fall back to their bare form, then to the
// unknown entry; unsupported locales fall back to DefaultLocale.
func UserMessage(code, locale string) string {
	entry, ok := userMessages[code]
	if !ok {
		if i := strings.LastIndex(code, "/"); i >= 0 {
			entry, ok = userMessages[code[i+1:]]
		}
	}
	if !ok {
		entry = userMessages["unknown"]
	}
	if msg, ok := entry[locale]; ok {
		return msg
	}
	return entry[DefaultLocale]
}

// Locales returns the supported locales.
func Locales() []string {
	return []string{LocaleEN, LocaleES, LocaleFR, LocaleDE}
}
