// Package browsertest provides an in-memory copy of the corporate site for
// tests running against the mock browser.
package browsertest

import (
	"fmt"
	"strings"

	"github.com/jakopako/sitecheckr/internal/browser"
)

const (
	HomeURL       = "https://www.sogeti.com/"
	AutomationURL = "https://www.sogeti.com/services/automation/"
	ContactURL    = "https://www.sogeti.com/contact-us/"
)

// Countries are the countries linked from the worldwide menu.
var Countries = []string{
	"Belgium", "Finland", "France", "Germany", "Ireland", "Luxembourg",
	"Netherlands", "Norway", "Spain", "Sweden", "UK", "US",
}

// CountryURL returns the url the worldwide menu links for a country.
func CountryURL(country string) string {
	return fmt.Sprintf("https://www.sogeti.%s/", strings.ToLower(country))
}

func menu(selected string) string {
	class := func(item string) string {
		if item == selected {
			return ` class="selected"`
		}
		return ""
	}
	servicesClass := "main-menu-item"
	if selected != "" {
		servicesClass += " selected"
	}
	return `<nav><ul class="main-menu">
	<li class="` + servicesClass + `"><span id="services-menu">Services</span>
		<div class="mega-menu" data-reveal-on-hover="services-menu" style="display: none">
			<ul>
				<li` + class("automation") + `><a href="/services/automation/">Automation</a></li>
				<li` + class("testing") + `><a href="/services/testing/">Testing</a></li>
			</ul>
		</div>
	</li>
	<li class="main-menu-item"><a href="/contact-us/">Contact us</a></li>
</ul></nav>`
}

func worldwide() string {
	var sb strings.Builder
	sb.WriteString(`<div class="navbar-global">
	<span id="worldwide" class="sprite-header">Worldwide</span>
	<div id="country-list-id" data-reveal-on-click="worldwide" hidden><ul>
`)
	for _, c := range Countries {
		fmt.Fprintf(&sb, "\t\t<li><a href=%q>%s</a></li>\n", CountryURL(c), c)
	}
	sb.WriteString("\t</ul></div>\n</div>")
	return sb.String()
}

const cookieBanner = `<div id="CookieConsent"><p>We use cookies.</p><button class="acceptCookie" id="accept-cookies">Allow all cookies</button></div>`

func page(title, menuSelection, body string) string {
	return "<html><head><title>" + title + "</title></head><body>\n" +
		cookieBanner + "\n" + menu(menuSelection) + "\n" + worldwide() + "\n" +
		"<main>" + body + "</main>\n</body></html>"
}

// Home is the landing page.
func Home() string {
	return page("Sogeti", "", `<h1>Welcome</h1>`)
}

// Automation is the page the services menu leads to.
func Automation() string {
	return page("Automation", "automation", `<h1>Automation</h1><p>Automation services.</p>`)
}

// Contact is the contact form page.
func Contact() string {
	return page("Contact us", "", `<h1>Contact us</h1>
<form id="contact-form">
	<input id="first-name" name="FirstName" type="text">
	<input id="last-name" name="LastName" type="text">
	<input id="email" name="Email" type="email">
	<input id="phone" name="Phone" type="tel">
	<input id="company" name="Company" type="text">
	<input id="customer-number" name="CustomerNumber" type="text" readonly value="C-1">
	<select id="country" name="Country">
		<option value="">Select country</option>
		<option value="Belgium">Belgium</option>
		<option value="Germany">Germany</option>
		<option value="Netherlands">Netherlands</option>
	</select>
	<textarea id="message" name="Message"></textarea>
	<input id="agree" name="Agree" type="checkbox"><label for="agree">I agree</label>
	<iframe title="reCAPTCHA" src="https://www.google.com/recaptcha/api2/anchor"></iframe>
	<textarea id="g-recaptcha-response" name="g-recaptcha-response" style="display: none"></textarea>
	<button id="submit-contact" type="submit">Submit</button>
	<button id="disabled-button" type="button" disabled>Disabled</button>
</form>
<div class="Form__Success__Message" data-reveal-on-click="submit-contact" hidden>Thank you for contacting us.</div>`)
}

// Pages returns the site as mock pages.
func Pages() []browser.MockContent {
	return []browser.MockContent{
		{URL: HomeURL, Content: Home()},
		{URL: AutomationURL, Content: Automation()},
		{URL: ContactURL, Content: Contact()},
	}
}

// NewProvider returns a mock provider serving the site.
func NewProvider() *browser.MockProvider {
	return browser.NewMockProvider(&browser.Config{
		Type:      browser.MOCK_PROVIDER_TYPE,
		MockPages: Pages(),
	})
}
