package router

import (
	"fmt"
	"slices"
	"strings"
)

const bulletMarker = "• "

// Catalog holds every fixed reply the router can emit for one locale.
type Catalog struct {
	Locale       string
	Greeting     string
	IntroFormat  string
	Steps        []string
	DoneFormat   string
	DeployPrompt string
	CameraHint   string
	EchoFormat   string
}

var catalogs = map[string]Catalog{
	"en": {
		Locale:      "en",
		Greeting:    "Hello, the AIGE channel is ready. Type your command.",
		IntroFormat: "Preparing deployment to %s ...",
		Steps: []string{
			"Checking requirements...",
			"Building the package...",
			"Uploading assets...",
			"Configuring SSL/Proxy...",
			"Running post-deploy tests...",
		},
		DoneFormat:   "Done — trial deployment provisioned for %s.",
		DeployPrompt: "Type: deploy example.com",
		CameraHint:   "Press the 📸 Start camera button in the interface.",
		EchoFormat:   "I heard you: “%s”. This is the factory build — connect it to the real engine for smart replies.",
	},
	"ar": {
		Locale:      "ar",
		Greeting:    "مرحبًا، قناة AIGE جاهزة. اكتب أمرك.",
		IntroFormat: "جارٍ تجهيز نشر إلى %s ...",
		Steps: []string{
			"تحقق المتطلبات...",
			"بناء الحزمة...",
			"رفع الأصول...",
			"تهيئة SSL/Proxy...",
			"اختبارات ما بعد النشر...",
		},
		DoneFormat:   "تم — النشر التجريبي مهيأ لـ %s.",
		DeployPrompt: "اكتب: deploy example.com",
		CameraHint:   "اضغط زر 📸 تشغيل الكاميرا من الواجهة.",
		EchoFormat:   "سمعتك: “%s”. هذه نسخة المصنع — اربطها بالمحرك الحقيقي لردود ذكية.",
	},
}

// DefaultCatalog returns the English catalog.
func DefaultCatalog() Catalog {
	catalog, _ := CatalogFor("en")
	return catalog
}

// CatalogFor returns a copy of the catalog registered for locale.
func CatalogFor(locale string) (Catalog, error) {
	catalog, ok := catalogs[strings.ToLower(strings.TrimSpace(locale))]
	if !ok {
		return Catalog{}, fmt.Errorf("unsupported locale %q (available: %s)", locale, strings.Join(Locales(), ", "))
	}

	catalog.Steps = slices.Clone(catalog.Steps)
	return catalog, nil
}

// Locales lists the registered catalog locales in sorted order.
func Locales() []string {
	locales := make([]string, 0, len(catalogs))
	for locale := range catalogs {
		locales = append(locales, locale)
	}
	slices.Sort(locales)
	return locales
}

func (c Catalog) intro(target string) string {
	return fmt.Sprintf(c.IntroFormat, target)
}

func (c Catalog) done(target string) string {
	return fmt.Sprintf(c.DoneFormat, target)
}

func (c Catalog) echo(text string) string {
	return fmt.Sprintf(c.EchoFormat, text)
}

func stepLine(label string) string {
	return bulletMarker + label
}
