package sqlinline

const QInsertJob = `--sql fcafe013-285c-469e-82a7-7787a074a890
insert into jobs (id, user_id, job_type, status, input, credits_charged, reference_id)
values ($1, $2, $3, 'queued', $4, $5, $6)
returning created_at;
`

const QLockJobProgress = `--sql b75c5f18-00b4-4690-8f2b-e97ddc44cefb
select status, progress
from jobs
where id = $1
for update;
`

const QUpdateJobProgress = `--sql e6c392c6-d6e3-4528-a85d-64f6679a5235
update jobs
set status = 'processing',
    progress = $2,
    current_step = $3,
    started_at = coalesce(started_at, now())
where id = $1;
`

const QCompleteJob = `--sql 6de31766-7c9f-4bac-97e0-459559a9831e
update jobs
set status = 'completed', progress = 100, result = $2, completed_at = now()
where id = $1 and status in ('queued', 'processing');
`

const QFailJob = `--sql 38697824-aae1-4ac5-8e70-f6c08fb43c2e
update jobs
set status = 'failed', error = $2, completed_at = now()
where id = $1 and status in ('queued', 'processing');
`

const QCancelJob = `--sql 53fbbf8a-72ea-4081-81d0-ce7e26349901
update jobs
set status = 'cancelled', error = $2, completed_at = now()
where id = $1 and status in ('queued', 'processing');
`

const QJobExists = `--sql ec22e6b3-e065-41b7-8ee5-6a5e8fdee777
select exists (select 1 from jobs where id = $1);
`

const QJobStatus = `--sql 5f8e3bb0-4ae5-4031-ac5f-2149bfd750a7
select status, progress, current_step, coalesce(error, '')
from jobs
where id = $1;
`

const QGetJob = `--sql 775fef03-c694-4952-bdd1-5f860a238337
select id, user_id, job_type, status, progress, current_step, input, result, coalesce(error, ''),
       credits_charged, reference_id, created_at, started_at, completed_at
from jobs
where id = $1;
`

const QListJobsByUser = `--sql 51bb55bb-42ad-40c6-b1c6-4bdc6040a8d3
select id, user_id, job_type, status, progress, current_step, input, result, coalesce(error, ''),
       credits_charged, reference_id, created_at, started_at, completed_at
from jobs
where user_id = $1
order by created_at desc
limit $2;
`

const QInsertJobStep = `--sql 936a5112-b965-48eb-b2b2-b8a8467aba7a
insert into job_steps (id, job_id, stage, step_name, step_order, status, output, error, prediction_id, duration_ms)
values ($1, $2, $3, $4, $5, $6, $7, nullif($8, ''), nullif($9, ''), $10)
returning created_at;
`

const QListJobSteps = `--sql 7ddb9570-7f82-4282-9eee-4f62ad39a9a9
select id, job_id, stage, step_name, step_order, status, output, coalesce(error, ''), coalesce(prediction_id, ''), duration_ms, created_at
from job_steps
where job_id = $1
order by step_order asc, created_at asc;
`

const QLockStepByPrediction = `--sql f900910b-78c6-49ed-87ed-c0ae7837f186
select id, job_id, stage, step_name, step_order, status, output, coalesce(error, ''), coalesce(prediction_id, ''), duration_ms, created_at
from job_steps
where prediction_id = $1
order by created_at asc, step_order asc
limit 1
for update;
`

const QUpdateStepFromPrediction = `--sql c879c1c2-6d5a-48fd-9507-407bcec02af0
update job_steps
set status = $2, output = $3, error = nullif($4, '')
where id = $1;
`
