// Package evaluate measures how well a detection backend finds entities in
// labelled text.
//
// Samples are read from CoNLL or WNUT token files. Each sentence is rebuilt
// by joining its tokens with single spaces, and every run of tokens sharing
// an entity label becomes a Span over the rebuilt text. Labels of the data
// set are translated to the backend's entity types with a label map; labels
// without a mapping are ignored.
//
// Scoring is character level. The ground truth and the predictions of a
// sample are encoded as one integer code per character, 0 meaning no entity,
// and precision, recall and F-beta are computed per entity type from the
// character counts of all samples. A predicted entity covers every
// occurrence of its text in the sentence, which is what a redaction of that
// entity would remove.
package evaluate
