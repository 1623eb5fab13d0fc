package android

// Capability interfaces queried by the transitive dependency collector.
// Rules advertise a contribution by implementing the matching interface;
// the collector unions contributions across the dependency closure.

// HasClasspathEntries marks rules contributing jars to the dex input set.
type HasClasspathEntries interface {
	// ClasspathEntry returns the project-relative jar path, or "" when the
	// rule produces no classes (dependency-only library).
	ClasspathEntry() string
}

// HasAndroidResources marks rules contributing a resource directory.
type HasAndroidResources interface {
	ResDirectory() string
	// GeneratedCodePackage is the package name generated resource stubs
	// are emitted under.
	GeneratedCodePackage() string
}

// HasAssets marks rules contributing an assets directory.
type HasAssets interface {
	AssetsDirectory() string
}

// HasNativeLibs marks rules contributing native library directories.
type HasNativeLibs interface {
	NativeLibsDirectory() string
	// NativeLibAssetsDirectory holds native libs loaded from assets at
	// runtime rather than installed by the platform; "" when absent.
	NativeLibAssetsDirectory() string
}

// HasManifestFragment marks rules contributing a manifest fragment.
type HasManifestFragment interface {
	ManifestFragment() string
}

// HasShrinkerConfig marks rules contributing a shrinker config file.
type HasShrinkerConfig interface {
	ShrinkerConfig() string
}
