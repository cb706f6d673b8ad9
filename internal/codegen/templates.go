package codegen

// Kotlin source templates keyed by logical name. The bodies intentionally
// stay minimal: partner apps extend them, the generator only wires identity,
// endpoints and feature gates.
var sourceTemplates = map[string]string{
	"application": `package {{.PackageName}}

import android.app.Application
import {{.PackageName}}.config.PartnerBuildConfig
{{- if .EKYC}}
import {{.PackageName}}.features.EkycModule
{{- end}}
{{- if .Biometric}}
import {{.PackageName}}.features.BiometricModule
{{- end}}

class {{.ClassName}}Application : Application() {

    override fun onCreate() {
        super.onCreate()
        PartnerBuildConfig.init(this)
{{- if .EKYC}}
        EkycModule.register(this)
{{- end}}
{{- if .Biometric}}
        BiometricModule.register(this)
{{- end}}
    }
}
`,

	"main_activity": `package {{.PackageName}}

import android.os.Bundle
import androidx.appcompat.app.AppCompatActivity

class MainActivity : AppCompatActivity() {

    override fun onCreate(savedInstanceState: Bundle?) {
        setTheme(R.style.Theme_App_Splash)
        super.onCreate(savedInstanceState)
        setContentView(R.layout.activity_main)
    }
}
`,

	"partner_config": `package {{.PackageName}}.config

import android.content.Context

object PartnerBuildConfig {
    const val APP_NAME = "{{.AppName}}"
    const val VERSION = "{{.Version}}"
    const val VERSION_CODE = {{.VersionCode}}
    const val API_BASE_URL = "{{.BaseURL}}"
    const val ENVIRONMENT = "{{.Environment}}"

    val FEATURES: Map<String, Boolean> = mapOf(
{{- range .Features}}
        "{{.Name}}" to {{.Enabled}},
{{- end}}
    )

    fun init(context: Context) {
        // Reserved for runtime configuration loading.
    }

    fun featureEnabled(name: String): Boolean = FEATURES[name] ?: false
}
`,

	"ekyc_module": `package {{.PackageName}}.features

import android.app.Application

object EkycModule {
    fun register(app: Application) {
        // Identity verification flows are activated lazily on first use.
    }
}
`,

	"biometric_module": `package {{.PackageName}}.features

import android.app.Application

object BiometricModule {
    fun register(app: Application) {
        // Biometric prompt wiring happens on the login screen.
    }
}
`,
}
