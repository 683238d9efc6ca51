package usecase

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
)

// Reply catalog keys.
const (
	msgGreeting          = "greeting"
	msgAck               = "ack"
	msgAckNamed          = "ack.named"
	msgNotUnderstood     = "not_understood"
	msgInsist            = "insist"
	msgConfirmPassword   = "password.confirm"
	msgPasswordMismatch  = "password.mismatch"
	msgPasswordQuestion  = "password.question"
	msgPotentialDup      = "duplicate.potential"
	msgWelcomeBack       = "duplicate.welcome_back"
	msgWelcomeBackNamed  = "duplicate.welcome_back.named"
	msgCompleted         = "completed"
	msgAbandoned         = "abandoned"
	msgAlreadyRegistered = "already_registered"
	msgTryAgain          = "try_again"
)

func askKey(f domain.Field) string                 { return "ask." + string(f) }
func rejectKey(f domain.Field, code string) string { return "reject." + string(f) + "." + code }
func hintKey(f domain.Field) string                { return "hint." + string(f) }
func warnKey(code string) string                   { return "warn." + code }

var replyTexts = map[language.Tag]map[string]string{
	language.English: {
		msgGreeting:          "Hello! I will help you register as a farmer. It only takes a minute.",
		msgAck:               "Thank you.",
		msgAckNamed:          "Thank you, %s.",
		msgNotUnderstood:     "Sorry, I did not quite get that.",
		msgInsist:            "I can help with other questions once you are registered. Let's finish the registration first.",
		msgConfirmPassword:   "Please type the same password again to confirm it.",
		msgPasswordMismatch:  "The two passwords did not match. Please choose a password again.",
		msgPasswordQuestion:  "Please send only the password you want to use, with no other text.",
		msgPotentialDup:      "Note: a farmer with a similar name is already registered. If that is you, you can stop here and log in instead; otherwise we simply continue.",
		msgWelcomeBack:       "Welcome back! This phone number is already registered, so you do not need to register again.",
		msgWelcomeBackNamed:  "Welcome back, %s! This phone number is already registered, so you do not need to register again.",
		msgCompleted:         "Thank you, %s! Your registration is complete and your account is ready.",
		msgAbandoned:         "Registration cancelled. Send a new message any time to start again.",
		msgAlreadyRegistered: "This registration is already finished.",
		msgTryAgain:          "Sorry, something went wrong on our side. Please try again.",

		askKey(domain.FieldFirstName):   "What is your first name?",
		askKey(domain.FieldLastName):    "What is your last name?",
		askKey(domain.FieldPhoneNumber): "What is your mobile phone number? Please include the country code, starting with +.",
		askKey(domain.FieldPassword):    "Please choose a password with at least 8 characters.",

		rejectKey(domain.FieldFirstName, CodeEmpty):                "I did not receive a first name.",
		rejectKey(domain.FieldFirstName, CodeTooLong):              "That first name is too long.",
		rejectKey(domain.FieldFirstName, CodeInvalidCharacters):    "A first name can contain only letters.",
		rejectKey(domain.FieldFirstName, CodeLooksLikePhone):       "That looks like a phone number, not a first name.",
		rejectKey(domain.FieldFirstName, CodePlaceName):            "That sounds like a place rather than a first name.",
		rejectKey(domain.FieldLastName, CodeEmpty):                 "I did not receive a last name.",
		rejectKey(domain.FieldLastName, CodeTooLong):               "That last name is too long.",
		rejectKey(domain.FieldLastName, CodeInvalidCharacters):     "A last name can contain only letters.",
		rejectKey(domain.FieldLastName, CodeLooksLikePhone):        "That looks like a phone number, not a last name.",
		rejectKey(domain.FieldLastName, CodePlaceName):             "That sounds like a place rather than a last name.",
		rejectKey(domain.FieldPhoneNumber, CodeEmpty):              "I did not receive a phone number.",
		rejectKey(domain.FieldPhoneNumber, CodeMissingCountryCode): "The phone number needs the country code at the start, beginning with +.",
		rejectKey(domain.FieldPhoneNumber, CodeTooShort):           "That phone number is too short.",
		rejectKey(domain.FieldPhoneNumber, CodeTooLong):            "That phone number is too long.",
		rejectKey(domain.FieldPhoneNumber, CodeInvalidCharacters):  "A phone number can contain only digits and a leading +.",
		rejectKey(domain.FieldPassword, CodeMinLength):             "That password is too short; it needs at least 8 characters.",

		hintKey(domain.FieldFirstName):   "Please write only your first name, for example: Peter.",
		hintKey(domain.FieldLastName):    "Please write only your last name, for example: Horvat.",
		hintKey(domain.FieldPhoneNumber): "For example, a Slovenian mobile number is written as +38641348050.",
		hintKey(domain.FieldPassword):    "Any 8 or more characters will do; a mix of letters and digits is safer.",

		warnKey("letter"):        "Tip: adding letters would make it stronger.",
		warnKey("digit"):         "Tip: adding digits would make it stronger.",
		warnKey("weak_password"): "Tip: this password is easy to guess; a longer one would be safer.",
		warnKey("personal_info"): "Tip: passwords without your name or phone number are harder to guess.",
	},
	language.Slovenian: {
		msgGreeting:          "Pozdravljeni! Pomagal vam bom pri registraciji kmeta. Vzame le minuto.",
		msgAck:               "Hvala.",
		msgAckNamed:          "Hvala, %s.",
		msgNotUnderstood:     "Oprostite, tega nisem povsem razumel.",
		msgInsist:            "Pri drugih vprašanjih vam lahko pomagam po registraciji. Najprej dokončajmo registracijo.",
		msgConfirmPassword:   "Prosim, še enkrat vpišite isto geslo za potrditev.",
		msgPasswordMismatch:  "Gesli se nista ujemali. Prosim, ponovno izberite geslo.",
		msgPasswordQuestion:  "Prosim, pošljite samo geslo, ki ga želite uporabljati, brez drugega besedila.",
		msgPotentialDup:      "Opomba: kmet s podobnim imenom je že registriran. Če ste to vi, se lahko namesto tega prijavite; sicer preprosto nadaljujemo.",
		msgWelcomeBack:       "Dobrodošli nazaj! Ta telefonska številka je že registrirana, zato se vam ni treba ponovno registrirati.",
		msgWelcomeBackNamed:  "Dobrodošli nazaj, %s! Ta telefonska številka je že registrirana, zato se vam ni treba ponovno registrirati.",
		msgCompleted:         "Hvala, %s! Registracija je končana in vaš račun je pripravljen.",
		msgAbandoned:         "Registracija je preklicana. Kadar koli pošljite novo sporočilo za ponoven začetek.",
		msgAlreadyRegistered: "Ta registracija je že zaključena.",
		msgTryAgain:          "Oprostite, pri nas je prišlo do napake. Prosim, poskusite znova.",

		askKey(domain.FieldFirstName):   "Kako vam je ime?",
		askKey(domain.FieldLastName):    "Kakšen je vaš priimek?",
		askKey(domain.FieldPhoneNumber): "Kakšna je vaša mobilna številka? Prosim, vključite kodo države, ki se začne s +.",
		askKey(domain.FieldPassword):    "Prosim, izberite geslo z vsaj 8 znaki.",

		rejectKey(domain.FieldFirstName, CodeEmpty):                "Imena nisem prejel.",
		rejectKey(domain.FieldFirstName, CodeTooLong):              "To ime je predolgo.",
		rejectKey(domain.FieldFirstName, CodeInvalidCharacters):    "Ime lahko vsebuje samo črke.",
		rejectKey(domain.FieldFirstName, CodeLooksLikePhone):       "To je videti kot telefonska številka, ne kot ime.",
		rejectKey(domain.FieldFirstName, CodePlaceName):            "To je videti kot kraj in ne kot ime.",
		rejectKey(domain.FieldLastName, CodeEmpty):                 "Priimka nisem prejel.",
		rejectKey(domain.FieldLastName, CodeTooLong):               "Ta priimek je predolg.",
		rejectKey(domain.FieldLastName, CodeInvalidCharacters):     "Priimek lahko vsebuje samo črke.",
		rejectKey(domain.FieldLastName, CodeLooksLikePhone):        "To je videti kot telefonska številka, ne kot priimek.",
		rejectKey(domain.FieldLastName, CodePlaceName):             "To je videti kot kraj in ne kot priimek.",
		rejectKey(domain.FieldPhoneNumber, CodeEmpty):              "Telefonske številke nisem prejel.",
		rejectKey(domain.FieldPhoneNumber, CodeMissingCountryCode): "Telefonska številka potrebuje na začetku kodo države, ki se začne s +.",
		rejectKey(domain.FieldPhoneNumber, CodeTooShort):           "Ta telefonska številka je prekratka.",
		rejectKey(domain.FieldPhoneNumber, CodeTooLong):            "Ta telefonska številka je predolga.",
		rejectKey(domain.FieldPhoneNumber, CodeInvalidCharacters):  "Telefonska številka lahko vsebuje samo števke in + na začetku.",
		rejectKey(domain.FieldPassword, CodeMinLength):             "Geslo je prekratko; potrebuje vsaj 8 znakov.",

		hintKey(domain.FieldFirstName):   "Prosim, napišite samo ime, na primer: Peter.",
		hintKey(domain.FieldLastName):    "Prosim, napišite samo priimek, na primer: Horvat.",
		hintKey(domain.FieldPhoneNumber): "Slovenska mobilna številka se na primer zapiše kot +38641348050.",
		hintKey(domain.FieldPassword):    "Ustreza katerih koli 8 ali več znakov; mešanica črk in številk je varnejša.",

		warnKey("letter"):        "Namig: s črkami bi bilo geslo močnejše.",
		warnKey("digit"):         "Namig: s številkami bi bilo geslo močnejše.",
		warnKey("weak_password"): "Namig: to geslo je lahko uganiti; daljše bi bilo varnejše.",
		warnKey("personal_info"): "Namig: geslo brez vašega imena ali telefonske številke je težje uganiti.",
	},
	language.Spanish: {
		msgGreeting:          "¡Hola! Le ayudaré a registrarse como agricultor. Solo toma un minuto.",
		msgAck:               "Gracias.",
		msgAckNamed:          "Gracias, %s.",
		msgNotUnderstood:     "Disculpe, no lo he entendido del todo.",
		msgInsist:            "Podré ayudarle con otras preguntas cuando esté registrado. Terminemos primero el registro.",
		msgConfirmPassword:   "Por favor, escriba la misma contraseña otra vez para confirmarla.",
		msgPasswordMismatch:  "Las dos contraseñas no coinciden. Por favor, elija una contraseña de nuevo.",
		msgPasswordQuestion:  "Por favor, envíe solo la contraseña que quiere usar, sin otro texto.",
		msgPotentialDup:      "Nota: ya hay un agricultor registrado con un nombre parecido. Si es usted, puede iniciar sesión; si no, seguimos sin problema.",
		msgWelcomeBack:       "¡Bienvenido de nuevo! Este número de teléfono ya está registrado, así que no necesita registrarse otra vez.",
		msgWelcomeBackNamed:  "¡Bienvenido de nuevo, %s! Este número de teléfono ya está registrado, así que no necesita registrarse otra vez.",
		msgCompleted:         "¡Gracias, %s! Su registro está completo y su cuenta está lista.",
		msgAbandoned:         "Registro cancelado. Envíe un mensaje nuevo cuando quiera para empezar de nuevo.",
		msgAlreadyRegistered: "Este registro ya está terminado.",
		msgTryAgain:          "Disculpe, algo ha fallado por nuestra parte. Por favor, inténtelo de nuevo.",

		askKey(domain.FieldFirstName):   "¿Cuál es su nombre?",
		askKey(domain.FieldLastName):    "¿Cuál es su apellido?",
		askKey(domain.FieldPhoneNumber): "¿Cuál es su número de móvil? Incluya el prefijo del país, empezando por +.",
		askKey(domain.FieldPassword):    "Por favor, elija una contraseña de al menos 8 caracteres.",

		rejectKey(domain.FieldFirstName, CodeEmpty):                "No he recibido ningún nombre.",
		rejectKey(domain.FieldFirstName, CodeTooLong):              "Ese nombre es demasiado largo.",
		rejectKey(domain.FieldFirstName, CodeInvalidCharacters):    "El nombre solo puede contener letras.",
		rejectKey(domain.FieldFirstName, CodeLooksLikePhone):       "Eso parece un número de teléfono, no un nombre.",
		rejectKey(domain.FieldFirstName, CodePlaceName):            "Eso parece un lugar y no un nombre.",
		rejectKey(domain.FieldLastName, CodeEmpty):                 "No he recibido ningún apellido.",
		rejectKey(domain.FieldLastName, CodeTooLong):               "Ese apellido es demasiado largo.",
		rejectKey(domain.FieldLastName, CodeInvalidCharacters):     "El apellido solo puede contener letras.",
		rejectKey(domain.FieldLastName, CodeLooksLikePhone):        "Eso parece un número de teléfono, no un apellido.",
		rejectKey(domain.FieldLastName, CodePlaceName):             "Eso parece un lugar y no un apellido.",
		rejectKey(domain.FieldPhoneNumber, CodeEmpty):              "No he recibido ningún número de teléfono.",
		rejectKey(domain.FieldPhoneNumber, CodeMissingCountryCode): "El número de teléfono necesita el prefijo del país al principio, empezando por +.",
		rejectKey(domain.FieldPhoneNumber, CodeTooShort):           "Ese número de teléfono es demasiado corto.",
		rejectKey(domain.FieldPhoneNumber, CodeTooLong):            "Ese número de teléfono es demasiado largo.",
		rejectKey(domain.FieldPhoneNumber, CodeInvalidCharacters):  "El número de teléfono solo puede contener dígitos y un + inicial.",
		rejectKey(domain.FieldPassword, CodeMinLength):             "La contraseña es demasiado corta; necesita al menos 8 caracteres.",

		hintKey(domain.FieldFirstName):   "Escriba solo su nombre, por ejemplo: Pedro.",
		hintKey(domain.FieldLastName):    "Escriba solo su apellido, por ejemplo: García.",
		hintKey(domain.FieldPhoneNumber): "Por ejemplo, un móvil español se escribe como +34612345678.",
		hintKey(domain.FieldPassword):    "Sirven 8 o más caracteres cualesquiera; mezclar letras y números es más seguro.",

		warnKey("letter"):        "Consejo: añadir letras la haría más segura.",
		warnKey("digit"):         "Consejo: añadir números la haría más segura.",
		warnKey("weak_password"): "Consejo: esta contraseña es fácil de adivinar; una más larga sería más segura.",
		warnKey("personal_info"): "Consejo: una contraseña sin su nombre ni su teléfono es más difícil de adivinar.",
	},
}

// hintAfterAttempts is the number of failed attempts after which a
// rejection also shows a worked example.
const hintAfterAttempts = 2

// Replies renders deterministic, locale-specific reply text from a message catalog.
type Replies struct {
	catalog catalog.Catalog
	tags    []language.Tag
	matcher language.Matcher
}

// NewReplies builds the reply catalog with the given fallback locale.
func NewReplies(fallback string) *Replies {
	tag, err := language.Parse(fallback)
	if err != nil {
		tag = language.English
	}
	if _, ok := replyTexts[tag]; !ok {
		tag = language.English
	}
	b := catalog.NewBuilder(catalog.Fallback(tag))
	// The first tag wins when nothing matches.
	tags := []language.Tag{tag}
	for lang, texts := range replyTexts {
		for key, text := range texts {
			_ = b.SetString(lang, key, text)
		}
		if lang != tag {
			tags = append(tags, lang)
		}
	}
	return &Replies{catalog: b, tags: tags, matcher: language.NewMatcher(tags)}
}

func (r *Replies) printer(locale string) *message.Printer {
	tag := r.tags[0]
	if requested, err := language.Parse(locale); err == nil {
		if _, index, confidence := r.matcher.Match(requested); confidence != language.No {
			tag = r.tags[index]
		}
	}
	return message.NewPrinter(tag, message.Catalog(r.catalog))
}

// Text renders one catalog entry.
func (r *Replies) Text(locale, key string, args ...any) string {
	return r.printer(locale).Sprintf(key, args...)
}

// Ask renders the question for field.
func (r *Replies) Ask(locale string, field domain.Field) string {
	return r.Text(locale, askKey(field))
}

// Rejection explains a validation failure. From the second failed attempt
// on the same field it adds a concrete example.
func (r *Replies) Rejection(locale string, verr *ValidationError, attempts int) string {
	p := r.printer(locale)
	text := p.Sprintf(rejectKey(verr.Field, verr.Code))
	if attempts >= hintAfterAttempts {
		text += " " + p.Sprintf(hintKey(verr.Field))
	}
	return text
}

// Warnings renders advisory password tips.
func (r *Replies) Warnings(locale string, codes []string) string {
	if len(codes) == 0 {
		return ""
	}
	p := r.printer(locale)
	parts := make([]string, 0, len(codes))
	for _, code := range codes {
		parts = append(parts, p.Sprintf(warnKey(code)))
	}
	return strings.Join(parts, " ")
}

// Join concatenates non-empty reply parts.
func Join(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
