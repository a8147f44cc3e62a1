package sqlinline

const QInsertCharacter = `--sql 812c8da8-3be1-4de8-a7b8-dec17e553698
insert into characters (id, user_id, project_id, name, description, animal_type, source_image_key, game_view, style_pack)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
returning created_at;
`

const QGetCharacter = `--sql ee1732d1-08d6-4587-84e4-bf2c3973ea09
select id, user_id, project_id, name, description, animal_type, source_image_key, clean_image_key, game_view, style_pack, created_at
from characters
where id = $1;
`

const QSetCharacterCleanImage = `--sql c9f34d3d-2204-4137-ba1c-70e2747b2df3
update characters
set clean_image_key = $2
where id = $1;
`

const QInsertAnimation = `--sql dcc3126a-6d06-456e-b02f-7945e3afb381
insert into animations (id, character_id, job_id, action, direction, sheet_key, width, height, fps, upscaled)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`

const QInsertScene = `--sql 12bf5063-fdd1-4aba-8bda-f62d779fbf7f
insert into scenes (id, user_id, project_id, name, description, source_image_key, style_pack)
values ($1, $2, $3, $4, $5, $6, $7)
returning created_at;
`

const QGetScene = `--sql ea27c53a-f8e7-4aa8-b66a-6bf4804cdbe9
select id, user_id, project_id, name, description, source_image_key, style_pack, layers, preview_key, created_at
from scenes
where id = $1;
`

const QSetSceneLayers = `--sql 7e6a0e77-4807-4b33-b567-c7d506e57ebd
update scenes
set layers = $2
where id = $1;
`

const QSetScenePreview = `--sql 12d5fd00-b922-4743-af73-cecf3fa90e39
update scenes
set preview_key = $2
where id = $1;
`
