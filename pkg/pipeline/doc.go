// Package pipeline builds validated, immutable descriptions of scheduled data pipelines.
//
// A description is a set of named steps, each of a given kind (wait for an object, run a
// function, transfer data) with kind-specific parameters, plus the dependency edges between
// them and the schedule and retry policy the pipeline runs with. Descriptions are assembled
// with a Builder:
//
//	bld, err := pipeline.NewBuilder("etl_s3_to_redshift", pipeline.WithSchedule("0 1 * * *"))
//	_, err = bld.DefineStep(model.WaitForObjectKind, "check", model.Params{"location": "data/{{ ds }}/sales.csv"})
//	_, err = bld.DefineStep(model.RunFunctionKind, "validate", model.Params{"function": "validate_data"})
//	err = bld.Chain("check", "validate")
//	pipe, err := bld.Build()
//
// The builder rejects duplicate ids, params that do not satisfy their kind, dependencies on
// unknown steps and dependencies that would close a cycle. It never corrects a description on
// its own; every failing call returns an error matching one of the Err* sentinels.
//
// Nothing is scheduled or executed here. A built Pipeline is a read-only input for an external
// execution engine, exchanged through its Document form in JSON or YAML.
package pipeline
