// Package archive inspects article submission packages: zip containers
// bundling one JATS XML document, a PDF, and images. It classifies members,
// extracts bibliographic metadata from the embedded document, and repackages
// member subsets.
package archive
