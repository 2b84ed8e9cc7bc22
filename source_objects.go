package main

import "fmt"

// skippedObjects holds source objects that are reported but never migrated.
type skippedObjects struct {
	Views []string
}

func skippedObjectWarnings(objs *skippedObjects) []string {
	if objs == nil || len(objs.Views) == 0 {
		return nil
	}

	warnings := []string{
		fmt.Sprintf("source contains %d view(s); only base tables are migrated", len(objs.Views)),
	}
	for _, v := range objs.Views {
		warnings = append(warnings, fmt.Sprintf("view: %s", v))
	}
	return warnings
}
