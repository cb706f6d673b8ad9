package assets

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/forgeworks/appforge/internal/models"
)

const adaptiveIconXML = `<?xml version="1.0" encoding="utf-8"?>
<adaptive-icon xmlns:android="http://schemas.android.com/apk/res/android">
    <background android:drawable="@color/ic_launcher_background"/>
    <foreground android:drawable="@mipmap/%s_foreground"/>
</adaptive-icon>
`

const splashBackgroundXML = `<?xml version="1.0" encoding="utf-8"?>
<layer-list xmlns:android="http://schemas.android.com/apk/res/android">
    <item android:drawable="@color/splash_background"/>
    <item>
        <bitmap
            android:gravity="center"
            android:src="@drawable/splash_image"/>
    </item>
</layer-list>
`

const launcherBackgroundXML = `<?xml version="1.0" encoding="utf-8"?>
<resources>
    <color name="ic_launcher_background">%s</color>
</resources>
`

// WriteAdaptiveIcons emits the v26 adaptive icon descriptors alongside the
// rasterized mipmaps so API 26+ launchers pick up shaped icons.
func WriteAdaptiveIcons(resDir, background string) error {
	anydpi := filepath.Join(resDir, "mipmap-anydpi-v26")
	if err := os.MkdirAll(anydpi, 0o750); err != nil {
		return fmt.Errorf("%w: create %s: %v", models.ErrSystem, anydpi, err)
	}
	for _, name := range []string{"ic_launcher", "ic_launcher_round"} {
		path := filepath.Join(anydpi, name+".xml")
		if err := os.WriteFile(path, []byte(fmt.Sprintf(adaptiveIconXML, "ic_launcher")), 0o640); err != nil {
			return fmt.Errorf("%w: write %s: %v", models.ErrSystem, path, err)
		}
	}

	valuesDir := filepath.Join(resDir, "values")
	if err := os.MkdirAll(valuesDir, 0o750); err != nil {
		return fmt.Errorf("%w: create %s: %v", models.ErrSystem, valuesDir, err)
	}
	path := filepath.Join(valuesDir, "ic_launcher_background.xml")
	if err := os.WriteFile(path, []byte(fmt.Sprintf(launcherBackgroundXML, background)), 0o640); err != nil {
		return fmt.Errorf("%w: write %s: %v", models.ErrSystem, path, err)
	}
	return nil
}

// WriteSplashDrawable emits the layered splash screen drawable referencing
// the rasterized splash image.
func WriteSplashDrawable(resDir string) error {
	dir := filepath.Join(resDir, "drawable")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("%w: create %s: %v", models.ErrSystem, dir, err)
	}
	path := filepath.Join(dir, "splash_background.xml")
	if err := os.WriteFile(path, []byte(splashBackgroundXML), 0o640); err != nil {
		return fmt.Errorf("%w: write %s: %v", models.ErrSystem, path, err)
	}
	return nil
}
